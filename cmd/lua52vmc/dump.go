// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.starforge.dev/lua52vm/lua"
)

// newDumpCommand lists a compiled chunk's bytecode, in the same spirit
// as luac -l: one line per instruction plus a header of parameter,
// upvalue, local, and constant counts for each nested function.
func newDumpCommand() *cobra.Command {
	c := &cobra.Command{
		Use:                   "dump FILE",
		Short:                 "list a precompiled Lua chunk's bytecode",
		Args:                  cobra.ExactArgs(1),
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return dumpChunk(args[0])
	}
	return c
}

func dumpChunk(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	proto, err := lua.UnmarshalChunk(data)
	if err != nil {
		return err
	}
	names := make(map[*lua.Prototype]string)
	nameFunctions(names, proto, "")
	return printPrototype(proto, names)
}

func nameFunctions(names map[*lua.Prototype]string, p *lua.Prototype, base string) {
	if base == "" {
		if p.IsMainChunk() {
			base = "main"
		} else {
			base = "top"
		}
	}
	names[p] = base
	for i, f := range p.Functions {
		nameFunctions(names, f, fmt.Sprintf("%s[%d]", base, i))
	}
}

func printPrototype(p *lua.Prototype, names map[*lua.Prototype]string) error {
	kind := "function"
	if p.IsMainChunk() {
		kind = "main"
	}
	fmt.Printf("\n%s %s <%s:%d,%d> (%d instructions)\n",
		kind, names[p], p.Source.ShortSource(), p.LineDefined, p.LastLineDefined, len(p.Code))
	fmt.Printf("%d%s params, %d slots, %d upvalues, %d locals, %d constants, %d functions\n",
		p.NumParams, varargSuffix(p.IsVararg), p.MaxStackSize,
		len(p.Upvalues), len(p.LocalVariables), len(p.Constants), len(p.Functions))

	for pc, instr := range p.Code {
		line := p.LineAt(pc)
		if line > 0 {
			fmt.Printf("\t%d\t[%d]\t%s\n", pc+1, line, instr)
		} else {
			fmt.Printf("\t%d\t[-]\t%s\n", pc+1, instr)
		}
	}
	for i, k := range p.Constants {
		fmt.Printf("\tconstant %d\t%v\n", i, k)
	}
	for i, v := range p.LocalVariables {
		fmt.Printf("\tlocal %d\t%s\t%d\t%d\n", i, v.Name, v.StartPC, v.EndPC)
	}
	for i, uv := range p.Upvalues {
		fmt.Printf("\tupvalue %d\t%s\tinstack=%v\tindex=%d\n", i, uv.Name, uv.InStack, uv.Index)
	}

	for _, f := range p.Functions {
		if err := printPrototype(f, names); err != nil {
			return err
		}
	}
	return nil
}

func varargSuffix(isVararg bool) string {
	if isVararg {
		return "+"
	}
	return ""
}
