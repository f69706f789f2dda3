// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Command ikuyod runs the release-aggregation daemon: it crawls the
// release tracker, keeps a tiered metadata cache warm, and drives a
// BitTorrent download engine, all behind the command facade in
// internal/app.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
