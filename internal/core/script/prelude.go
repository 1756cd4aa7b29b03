package script

// hooksPrelude runs ahead of every user script. It rebuilds the run-local
// registration tables, so re-running the program for each dispatch keeps
// registrations stable and ordered.
const hooksPrelude = `
__hooks := {init: [], tick: [], action: {}, enter_room: [], connect: [], admin: {}}
hooks := {
	on_init: func(fn) { __hooks.init = append(__hooks.init, fn) },
	on_tick: func(fn) { __hooks.tick = append(__hooks.tick, fn) },
	on_action: func(name, fn) {
		cur := __hooks.action[name]
		if cur == undefined { cur = [] }
		__hooks.action[name] = append(cur, fn)
	},
	on_enter_room: func(fn) { __hooks.enter_room = append(__hooks.enter_room, fn) },
	on_connect: func(fn) { __hooks.connect = append(__hooks.connect, fn) },
	on_admin: func(name, min_level, fn) {
		cur := __hooks.admin[name]
		if cur == undefined { cur = [] }
		__hooks.admin[name] = append(cur, fn)
		lvl := __admin_levels[name]
		if lvl == undefined || min_level < lvl { __admin_levels[name] = min_level }
	}
}
`

// dispatchTrailer runs after the user script and routes the current hook to
// whatever the top-level code registered this run.
const dispatchTrailer = `
if __hook == "init" {
	for i := 0; i < len(__hooks.init); i++ { __hooks.init[i](world) }
} else if __hook == "tick" {
	for i := 0; i < len(__hooks.tick); i++ { __hooks.tick[i](world, __tick) }
} else if __hook == "action" {
	__fns := __hooks.action[__action]
	if __fns != undefined {
		for i := 0; i < len(__fns); i++ {
			if !__consumed {
				if __fns[i](world, __ctx) == true { __consumed = true }
			}
		}
	}
} else if __hook == "admin" {
	__afns := __hooks.admin[__action]
	if __afns != undefined {
		for i := 0; i < len(__afns); i++ {
			__afns[i](world, __ctx, __level)
			__consumed = true
		}
	}
} else if __hook == "enter_room" {
	for i := 0; i < len(__hooks.enter_room); i++ {
		__hooks.enter_room[i](world, __entity, __room, __old_room)
	}
} else if __hook == "connect" {
	for i := 0; i < len(__hooks.connect); i++ { __hooks.connect[i](world, __session) }
}
`
