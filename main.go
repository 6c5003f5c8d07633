// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/invowk/modrt/cmd/modrt"

func main() {
	cmd.Execute()
}
