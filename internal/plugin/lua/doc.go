// Package lua runs user Lua hooks that refine runnable selection.
//
// Scripts run in a sandboxed gopher-lua state: only the base, table, string
// and math libraries are opened, the loaders (dofile, loadfile, load,
// loadstring) are removed and require only resolves those libraries. Every
// chunk and call runs under a timeout.
//
// # Hooks
//
// A hook script defines a global filter function that receives each runnable
// as a table with the runnable's JSON field names:
//
//	function filter(r)
//	  if r.kind ~= "cargo" then return true end
//	  return r.args.cargoArgs[1] ~= "bench"
//	end
//
// Hook.Keep adapts the script to a selection predicate.
package lua
