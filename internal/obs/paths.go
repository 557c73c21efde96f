package obs

import "strings"

// CanonicalPath collapses resource identifiers so metric labels stay bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" {
		switch parts[1] {
		case "users":
			parts[2] = ":id"
			if len(parts) == 5 && parts[3] == "roles" {
				parts[4] = ":role_id"
			}
		case "roles":
			parts[2] = ":id"
		case "audit":
			if len(parts) >= 4 {
				switch parts[2] {
				case "logins", "actors":
					parts[3] = ":user_id"
				case "tables":
					parts[3] = ":table"
				case "records":
					parts[3] = ":table"
					if len(parts) >= 5 {
						parts[4] = ":record_id"
					}
				}
			}
		}
	}
	return "/" + strings.Join(parts, "/")
}
