/*
Package state contains the state of one direction of a unidirectional payment
channel, contained in the Channel type.

A pair of peers run two channels, one in each direction. In a channel one
participant is the sender, who funds the channel and signs claims, and the
other is the receiver, who verifies claims and can close the channel
cooperatively using the best claim it holds. A Channel is constructed with a
Direction that decides which of the local and remote keys plays each role:

	+---------------+                 +---------------+
	|    Sender     |                 |   Receiver    |
	|   (Outgoing)  |                 |   (Incoming)  |
	+-------+-------+                 +-------+-------+
	        |                                 |
	  CreateFunding                           |
	        +------------ funding txid ------>+
	        |                          DiscoverFunding
	   CreateClaim                            |
	        +------------- claim ------------>+
	        |                            VerifyClaim
	        |                                 |
	   BuildExpiry                  BuildCooperativeClose

A claim carries the cumulative amount owed to the receiver and the sender's
signature over the closure transaction paying that amount. The newest accepted
claim supersedes all earlier claims.

Channel methods are safe for concurrent use. A claim is verified in full
before any state is changed, so a rejected claim leaves the channel exactly as
it was.
*/
package state
