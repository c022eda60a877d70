package email

import (
	"strings"
)

// Format renders msg in the plain text capture layout shared by the
// console and file channels. The alternate body block is only emitted when
// an HTML view is attached.
func Format(msg *Message) string {
	var b strings.Builder

	b.WriteString("From: " + msg.From.String() + "\n")
	b.WriteString("To: " + JoinAddresses(msg.To) + "\n")
	b.WriteString("CC: " + JoinAddresses(msg.Cc) + "\n")
	b.WriteString("BCC: " + JoinAddresses(msg.Bcc) + "\n")
	b.WriteString("Subject: " + msg.Subject + "\n")
	b.WriteString("\n")
	b.WriteString("----- Plain Text Body Begin -----\n")
	b.WriteString(msg.PlainBody + "\n")
	b.WriteString("----- Plain Text Body End -----\n")

	if msg.HTML != nil {
		b.WriteString("\n")
		b.WriteString("----- Alternate Body Begin -----\n")
		b.WriteString(msg.HTML.Body + "\n")
		b.WriteString("----- Alternate Body End -----\n")
	}

	return b.String()
}
