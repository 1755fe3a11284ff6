package core

// User is one entry of the channel roster. All fields are opaque server tokens;
// Name is the identity key.
type User struct {
	Name  string `json:"name"`
	Flags string `json:"flags"`
	Ping  string `json:"ping"`
	Stats string `json:"stats"`
}

// roster is an ordered, name-unique list of users.
type roster []User

func (r roster) indexOf(name string) int {
	for i, u := range r {
		if u.Name == name {
			return i
		}
	}
	return -1
}

func (r roster) contains(name string) bool {
	return r.indexOf(name) >= 0
}

// snapshot returns a copy that callers may keep.
func (r roster) snapshot() []User {
	out := make([]User, len(r))
	copy(out, r)
	return out
}
