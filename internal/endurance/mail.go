package endurance

import (
	"fmt"
	"os/exec"

	"github.com/z8ocd/ocdctl/internal/ocderr"
)

// Mailer sends a cycle-status notification. The production implementation
// pipes an RFC 822 message to the local sendmail binary; tests substitute
// a fake that records calls instead of spawning a process.
type Mailer interface {
	Send(to string, cycle uint32, subject, detail string) error
}

// SendmailMailer pipes status mail to "sendmail -t -i", matching how the
// original tool forked and exec'd sendmail directly.
type SendmailMailer struct{}

func (SendmailMailer) Send(to string, cycle uint32, subject, detail string) error {
	cmd := exec.Command("sendmail", "-t", "-i")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return ocderr.Wrap(ocderr.IoError, "mail: open sendmail stdin", err)
	}
	if err := cmd.Start(); err != nil {
		return ocderr.Wrap(ocderr.IoError, "mail: start sendmail", err)
	}

	fmt.Fprintf(stdin, "To: %s\n", to)
	fmt.Fprintf(stdin, "Subject: cycle %d - %s\n\n", cycle, subject)
	fmt.Fprintf(stdin, "cycle %d\n", cycle)
	if detail != "" {
		fmt.Fprintf(stdin, "%s\n", detail)
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return ocderr.Wrap(ocderr.IoError, "mail: sendmail exited with error", err)
	}
	return nil
}
