// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package main provides the zinfo CLI: it builds a seek index for a gzip
// stream and prints a summary.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siderolabs/go-zinfo"
	"github.com/siderolabs/go-zinfo/zlib"
)

var (
	spanSize int64
	digests  bool
	verbose  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zinfo [file]",
		Short: "Build a random-access index for a gzip stream",
		Long: `zinfo decompresses a gzip stream once and records checkpoints at
deflate block boundaries, spaced at least span-size decompressed bytes apart.
Each checkpoint carries enough state to resume decompression mid-stream.

Reads from stdin when no file is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.Flags().Int64Var(&spanSize, "span-size", zinfo.DefaultSpanSize, "minimum decompressed distance between checkpoints")
	rootCmd.Flags().BoolVar(&digests, "digests", false, "print the sha256 digest of each checkpoint window")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	input := cmd.InOrStdin()

	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}

		defer f.Close() //nolint:errcheck

		input = f
	}

	logger := zap.NewNop()

	if verbose {
		var err error

		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
	}

	eng, err := zlib.NewInflater()
	if err != nil {
		return err
	}

	hasher := sha256.New()

	idx, err := zinfo.Build(io.TeeReader(input, hasher), eng,
		zinfo.WithSpanSize(spanSize),
		zinfo.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "compressed size:   %s (%d bytes)\n", humanize.IBytes(uint64(idx.TotalIn)), idx.TotalIn)
	fmt.Fprintf(out, "decompressed size: %s (%d bytes)\n", humanize.IBytes(uint64(idx.TotalOut)), idx.TotalOut)
	fmt.Fprintf(out, "span size:         %s\n", humanize.IBytes(uint64(idx.SpanSize)))
	fmt.Fprintf(out, "checkpoints:       %d\n", len(idx.Checkpoints))
	fmt.Fprintf(out, "input digest:      sha256:%s\n", hex.EncodeToString(hasher.Sum(nil)))

	if digests {
		spanDigests, err := idx.SpanDigests()
		if err != nil {
			return err
		}

		for i, cp := range idx.Checkpoints {
			fmt.Fprintf(out, "checkpoint %4d: in=%d out=%d bits=%d window=%s\n", i, cp.In, cp.Out, cp.Bits, spanDigests[i])
		}
	}

	return nil
}
