package main

import "github.com/TAAK61/qr-code-reader-sub001/cmd/qrprep/cmd"

func main() {
	cmd.Execute()
}
