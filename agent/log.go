package agent

// logClosure is used to defer formatting of expensive log output, such as
// transaction dumps, until the logger knows the output will be written.
type logClosure func() string

func (c logClosure) String() string {
	return c()
}

func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}
