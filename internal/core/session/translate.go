package session

import "strings"

// Action is a translated piece of player input, ready for script dispatch.
// Admin commands route through the privileged hook instead of on_action.
type Action struct {
	Name  string
	Arg   string
	Raw   string
	Admin bool
}

// directions recognized as shorthand for the move action.
var directions = map[string]string{
	"north": "north", "n": "north",
	"south": "south", "s": "south",
	"east": "east", "e": "east",
	"west": "west", "w": "west",
	"up": "up", "u": "up",
	"down": "down", "d": "down",
}

// TranslateLine turns one line of MUD input into a named action. Unmatched
// input becomes the "unknown" action carrying the raw line, so scripts own
// the response to gibberish.
func TranslateLine(line string) Action {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return Action{Name: "unknown", Raw: raw}
	}

	if strings.HasPrefix(raw, "/") {
		fields := strings.Fields(raw[1:])
		if len(fields) == 0 {
			return Action{Name: "unknown", Raw: raw}
		}
		return Action{
			Name:  strings.ToLower(fields[0]),
			Arg:   strings.Join(fields[1:], " "),
			Raw:   raw,
			Admin: true,
		}
	}

	fields := strings.Fields(raw)
	verb := strings.ToLower(fields[0])
	rest := strings.Join(fields[1:], " ")

	if dir, ok := directions[verb]; ok {
		return Action{Name: "move", Arg: dir, Raw: raw}
	}

	switch verb {
	case "look", "l":
		return Action{Name: "look", Arg: rest, Raw: raw}
	case "move", "go":
		if dir, ok := directions[strings.ToLower(rest)]; ok {
			return Action{Name: "move", Arg: dir, Raw: raw}
		}
		return Action{Name: "move", Arg: rest, Raw: raw}
	case "attack", "kill":
		return Action{Name: "attack", Arg: rest, Raw: raw}
	case "get", "take":
		return Action{Name: "get", Arg: rest, Raw: raw}
	case "drop":
		return Action{Name: "drop", Arg: rest, Raw: raw}
	case "inventory", "inv", "i":
		return Action{Name: "inventory", Raw: raw}
	case "say", "'":
		return Action{Name: "say", Arg: rest, Raw: raw}
	case "who":
		return Action{Name: "who", Raw: raw}
	case "help", "?":
		return Action{Name: "help", Raw: raw}
	default:
		return Action{Name: "unknown", Raw: raw}
	}
}
