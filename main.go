// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/capkit/capkit/cmd/capkit"

func main() {
	cmd.Execute()
}
