package proto

import "strings"

// Outbound keywords.
const (
	ProtocolMarker = "C1"
	PongCommand    = "/PONG"
)

// Login builds the handshake block written right after the connection is
// established: five terminated lines in a single buffer.
func Login(account, password, home string) []byte {
	var b strings.Builder
	for _, line := range []string{
		ProtocolMarker,
		"ACCT " + account,
		"PASS " + password,
		"HOME " + home,
		"LOGIN",
	} {
		b.WriteString(line)
		b.WriteString(LineTerminator)
	}
	return []byte(b.String())
}

// Pong builds the keepalive reply echoing the ping identifier verbatim.
func Pong(id string) []byte {
	return []byte(PongCommand + " " + id + LineTerminator)
}

// Command frames a raw user command as one line.
func Command(text string) []byte {
	return []byte(text + LineTerminator)
}
