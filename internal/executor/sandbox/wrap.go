package sandbox

import "fmt"

// Wrap surrounds user code with the control statements every run needs:
//
//	Alarm(timeout-1);        interpreter watchdog, one second before the sandbox limit
//	SetIgnorePrompt(true);   there is no terminal to answer prompts
//	<code>
//	;                        closes a dangling statement in the user's code
//	quit;                    exit even if the user code does not
//
// The result depends only on its arguments.
func Wrap(code string, timeout int) string {
	return fmt.Sprintf("Alarm(%d);\nSetIgnorePrompt(true);\n%s\n;\nquit;\n", timeout-1, code)
}
