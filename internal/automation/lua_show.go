//go:build !no_automation

package automation

import (
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"stage-command-center/internal/show"
)

const maxHandlersPerScript = 100

// registerShowModule registers the `show` global table in a Lua state.
func registerShowModule(L *lua.LState, vm *scriptVM, e *Engine) {
	fns := map[string]lua.LGFunction{
		"on":          func(L *lua.LState) int { return showOn(L, vm) },
		"toggle":      func(L *lua.LState) int { return showToggle(L, e) },
		"set":         func(L *lua.LState) int { return showSet(L, e) },
		"trigger_cue": func(L *lua.LState) int { return showTriggerCue(L, e) },
		"load_preset": func(L *lua.LState) int { return showLoadPreset(L, e) },
		"set_status":  func(L *lua.LState) int { return showSetStatus(L, e) },
		"status":      func(L *lua.LState) int { return showStatus(L, e) },
		"equipment":   func(L *lua.LState) int { return showEquipment(L, e) },
		"get":         func(L *lua.LState) int { return showGet(L, e) },
		"after":       func(L *lua.LState) int { return showAfter(L, vm, e) },
		"log":         func(L *lua.LState) int { return showLog(L, vm, e) },
	}
	L.SetGlobal("show", L.SetFuncs(L.NewTable(), fns))
}

// show.on(event, filter, callback)
func showOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{eventType: L.CheckString(1)}
	filter := L.CheckTable(2)
	h.fn = L.CheckFunction(3)

	if v := filter.RawGetString("id"); v != lua.LNil {
		h.id = v.String()
	}
	if v := filter.RawGetString("name"); v != lua.LNil {
		h.name = v.String()
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlersPerScript {
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	return 0
}

// show.toggle(id_or_name) flips a device and returns whether it was applied.
func showToggle(L *lua.LState, e *Engine) int {
	it, ok := resolveEquipment(e.show, L.CheckString(1))
	if !ok {
		e.logger.Warn("equipment not found", "target", L.CheckString(1))
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(e.show.Flip(it.ID)))
	return 1
}

// show.set(id_or_name, on)
func showSet(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	on := L.CheckBool(2)
	it, ok := resolveEquipment(e.show, target)
	if !ok {
		e.logger.Warn("equipment not found", "target", target)
		L.Push(lua.LFalse)
		return 1
	}
	if it.On == on {
		L.Push(lua.LTrue)
		return 1
	}
	L.Push(lua.LBool(e.show.Toggle(it.ID, it.On)))
	return 1
}

// show.trigger_cue(name)
func showTriggerCue(L *lua.LState, e *Engine) int {
	L.Push(lua.LBool(e.show.TriggerCue(L.CheckString(1))))
	return 1
}

// show.load_preset(name)
func showLoadPreset(L *lua.LState, e *Engine) int {
	L.Push(lua.LBool(e.show.LoadPreset(L.CheckString(1))))
	return 1
}

// show.set_status(status) changes the event phase, e.g. "Intermission".
func showSetStatus(L *lua.LState, e *Engine) int {
	if err := e.show.SetEventStatus(show.EventStatus(L.CheckString(1))); err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	return 0
}

// show.status() returns the event phase.
func showStatus(L *lua.LState, e *Engine) int {
	L.Push(lua.LString(e.show.EventStatus()))
	return 1
}

// show.equipment() returns an array of device tables.
func showEquipment(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	for i, it := range e.show.Equipment() {
		tbl.RawSetInt(i+1, goToLua(L, equipmentFields(it)))
	}
	L.Push(tbl)
	return 1
}

// show.get(id_or_name) returns one device table or nil.
func showGet(L *lua.LState, e *Engine) int {
	it, ok := resolveEquipment(e.show, L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(goToLua(L, equipmentFields(it)))
	return 1
}

// show.after(seconds, callback)
func showAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		case <-vm.ctx.Done():
		default:
			e.logger.Warn("after: command channel full")
		}
	}()
	return 0
}

// show.log(msg)
func showLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	msg := L.CheckString(1)
	if vm.logs != nil {
		vm.logs(msg)
	}
	e.logger.Info("script log", "msg", msg)
	return 0
}

// resolveEquipment finds a device by id, then by case-insensitive name.
func resolveEquipment(sh *show.Show, target string) (show.EquipmentItem, bool) {
	if it, ok := sh.Device(target); ok {
		return it, true
	}
	for _, it := range sh.Equipment() {
		if strings.EqualFold(it.Name, target) {
			return it, true
		}
	}
	return show.EquipmentItem{}, false
}
