package rules

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/kynortleon/TableHop/internal/queue"
)

// Lua function names the script may define. A missing function falls back
// to the permissive default for that predicate.
const (
	fnIsBlocked  = "is_blocked"
	fnIsEligible = "is_eligible"
)

// LuaValidator answers block and eligibility checks from a sandboxed Lua
// script plus the scenario catalog. The LState is single-threaded; a mutex
// serializes concurrent predicate calls. Each call runs under a fresh
// instruction budget so a runaway script stalls only its own call.
type LuaValidator struct {
	mu        sync.Mutex
	state     *lua.LState
	catalog   *Catalog
	instLimit int
	logger    *zap.Logger
}

// NewLuaValidator loads scriptPath into a sandboxed VM.
//
// Precondition: catalog and logger must be non-nil; instLimit <= 0 uses
// DefaultInstructionLimit.
// Postcondition: Returns a ready validator, or a non-nil error if the
// script fails to load. The caller must Close it when done.
func NewLuaValidator(catalog *Catalog, scriptPath string, instLimit int, logger *zap.Logger) (*LuaValidator, error) {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}

	L := newSandboxedState()
	if err := L.DoFile(scriptPath); err != nil {
		L.Close()
		return nil, fmt.Errorf("loading rules script %s: %w", scriptPath, err)
	}

	return &LuaValidator{
		state:     L,
		catalog:   catalog,
		instLimit: instLimit,
		logger:    logger,
	}, nil
}

// Close releases the Lua VM.
func (v *LuaValidator) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Close()
}

// IsBlocked calls the script's is_blocked(host, player). Without the
// function no pairing is blocked.
func (v *LuaValidator) IsBlocked(ctx context.Context, host, player *queue.QueueEntry) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	fn := v.state.GetGlobal(fnIsBlocked)
	if fn.Type() != lua.LTFunction {
		return false, nil
	}
	return v.callPredicate(fn, v.entryTable(host), v.entryTable(player))
}

// IsEligible calls the script's is_eligible(player, scenario). A player
// without a character reference, or a scenario code missing from the
// catalog, is ineligible before the script is consulted. Without the
// function any cataloged scenario is playable.
func (v *LuaValidator) IsEligible(ctx context.Context, player *queue.QueueEntry, scenarioCode string) (bool, error) {
	if player.CharacterRef == "" {
		return false, nil
	}
	scenario, ok := v.catalog.Lookup(scenarioCode)
	if !ok {
		v.logger.Warn("scenario not in catalog", zap.String("scenario", scenarioCode))
		return false, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	fn := v.state.GetGlobal(fnIsEligible)
	if fn.Type() != lua.LTFunction {
		return true, nil
	}
	return v.callPredicate(fn, v.entryTable(player), v.scenarioTable(scenario))
}

// callPredicate invokes fn(args...) under a fresh instruction budget and
// converts the single return value with Lua truthiness.
func (v *LuaValidator) callPredicate(fn lua.LValue, args ...lua.LValue) (bool, error) {
	ctx, cancel := newCountingContext(v.instLimit)
	defer cancel()
	v.state.SetContext(ctx)
	defer v.state.RemoveContext()

	if err := v.state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return false, fmt.Errorf("rules script: %w", err)
	}
	ret := v.state.Get(-1)
	v.state.Pop(1)
	return lua.LVAsBool(ret), nil
}

func (v *LuaValidator) entryTable(e *queue.QueueEntry) *lua.LTable {
	t := v.state.NewTable()
	t.RawSetString("participant_id", lua.LString(e.ParticipantID))
	t.RawSetString("role", lua.LString(string(e.Role)))
	t.RawSetString("scenario_code", lua.LString(e.ScenarioCode))
	t.RawSetString("character_ref", lua.LString(e.CharacterRef))
	return t
}

func (v *LuaValidator) scenarioTable(sc Scenario) *lua.LTable {
	t := v.state.NewTable()
	t.RawSetString("code", lua.LString(sc.Code))
	t.RawSetString("name", lua.LString(sc.Name))
	t.RawSetString("min_level", lua.LNumber(sc.MinLevel))
	t.RawSetString("max_level", lua.LNumber(sc.MaxLevel))
	t.RawSetString("season", lua.LNumber(sc.Season))
	return t
}
