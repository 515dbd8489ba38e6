package capture

// Disabled is a no-op stand-in for hosts without tshark or for simulated
// transports that record their own trace. Runs are still bracketed, the
// bracket just does nothing.
type Disabled struct{}

// NoSession is the session of a disabled capture.
type NoSession struct{}

func (NoSession) Stop() error { return nil }

// Path is empty: there is no dump file.
func (NoSession) Path() string { return "" }

func (Disabled) Start(string) (NoSession, error) {
	return NoSession{}, nil
}
