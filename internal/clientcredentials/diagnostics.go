package clientcredentials

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/pretty"
)

const banner = "=========="

var prettyOptions = &pretty.Options{Width: 80, Indent: "  "}

// diagnostics writes token responses and token errors to operator-visible
// streams. It is purely observational.
type diagnostics struct {
	stdout io.Writer
	stderr io.Writer
}

func newDiagnostics(stdout, stderr io.Writer) *diagnostics {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &diagnostics{stdout: stdout, stderr: stderr}
}

// tokenResponse dumps a successful token response body to stdout.
func (d *diagnostics) tokenResponse(body []byte) {
	_, _ = fmt.Fprintf(d.stdout, "token_response: \n%s \n%s\n%s\n", banner, prettyJSON(body), banner)
}

// errorResponse dumps a token endpoint error to stderr. JSON bodies are
// pretty-printed, anything else is written as received.
func (d *diagnostics) errorResponse(status int, body []byte, isJSON bool) {
	_, _ = fmt.Fprintf(d.stderr, "oauth2 error response:\nstatus=%d\n", status)
	if isJSON {
		_, _ = fmt.Fprintf(d.stderr, "token_error_response: \n%s \n%s\n%s\n", banner, prettyJSON(body), banner)
		return
	}
	_, _ = fmt.Fprintf(d.stderr, "error_response: \n%s \n%s\n%s\n", banner, body, banner)
}

func prettyJSON(body []byte) []byte {
	return bytes.TrimRight(pretty.PrettyOptions(body, prettyOptions), "\n")
}
