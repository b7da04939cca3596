// Copyright 2024 The zb Authors
// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

/*
Package lua implements the core of a Lua 5.2 virtual machine: the value
and table system, the register-based bytecode interpreter, and a
single-threaded coroutine engine built on explicit continuations rather
than OS threads or goroutines.

# Relation to the C API

[LuaState] plays the role of lua_State: it owns the globals table, the
registry, the string cache, and the main [Thread]. Methods on [Thread]
correspond to the entry points a host uses to run Lua code
([Thread.Resume], [Thread.Call]) and to the primitives a Go function
receives while it is running ([Thread.Yield]).

Unlike the C API, Go functions registered with a [LuaState] communicate
errors using the standard error type, and the compiler that turns Lua
source text into a [Prototype] is not part of this package: it is
supplied by the host through the [Loader] interface. This mirrors the
[luaL_loadfile]/[lua_load] split in the C API, where the reader
callback is host-supplied.

# Coroutines

Coroutines never use goroutines or OS threads. A [Thread.Yield] made
through ordinary calls and protected calls unwinds the interpreter loop
and any host frames between the yielder and the [Thread.Resume] call
site using a distinguished control-flow result (resultUnwind), not a
panic. Frames that might yield store enough state in their [DebugFrame]
to resume exactly where they left off; see unwind.go. Metamethods and
debug hooks are called synchronously and cannot be suspended: a yield
inside one of them fails with an [Uncatchable] error. [Loader.Load] is
a plain Go call and is not a suspension point.

[luaL_loadfile]: https://www.lua.org/manual/5.2/manual.html#luaL_loadfile
[lua_load]: https://www.lua.org/manual/5.2/manual.html#lua_load
*/
package lua
