// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.starforge.dev/lua52vm/lua"
)

// newRunCommand loads a compiled chunk (this package has no text
// compiler of its own; a host that wants to run Lua source text must
// supply a [lua.Loader]) and calls it with the command's remaining
// arguments as string values, the way the reference "lua" standalone
// interpreter runs a script.
func newRunCommand() *cobra.Command {
	c := &cobra.Command{
		Use:                   "run FILE [ARGS...]",
		Short:                 "run a precompiled Lua chunk",
		Args:                  cobra.MinimumNArgs(1),
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runChunk(cmd.Context(), args[0], args[1:])
	}
	return c
}

func runChunk(ctx context.Context, filename string, scriptArgs []string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	state := lua.NewState()
	lua.OpenLibs(state)

	fn, err := state.LoadChunk(ctx, lua.Source("@"+filename), data, lua.ChunkModeBinary, nil)
	if err != nil {
		return err
	}

	argValues := make([]lua.Value, len(scriptArgs))
	for i, a := range scriptArgs {
		argValues[i] = state.NewString(a)
	}
	results, err := state.MainThread().Call(ctx, fn, argValues...)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Println(state.ToString(r))
	}
	return nil
}
