package rbac

import "strings"

const apiPrefix = "/api/v1/"

// ModuleFromPath derives the module name of an endpoint: the first path
// segment after the /api/v1/ prefix.
func ModuleFromPath(path string) string {
	p := strings.TrimPrefix(path, apiPrefix)
	p = strings.Trim(p, "/")
	if p == "" {
		return "base"
	}
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(p)
}

// ModuleCode is the code of a MODULE permission for a parent menu bucket.
func ModuleCode(parentMenu string) string {
	return "menu." + parentMenu
}

// FeatureCode is the code of a FEATURE permission for a module under a parent
// menu bucket.
func FeatureCode(parentMenu, module string) string {
	return "submenu." + parentMenu + "." + module
}

// GeneratePermissionCode derives the stable code of an ACTION permission from
// its endpoint. The same inputs always yield the same code; the ensure-chain
// uses it as the dedup key, so any change here orphans existing grants.
//
// "/api/v1/user/{id}" + "DELETE" → "action.user.id.delete".
func GeneratePermissionCode(t PermissionType, apiPath, method string) string {
	if t != PermissionAction {
		return ""
	}
	p := strings.TrimPrefix(apiPath, apiPrefix)
	p = strings.Trim(p, "/")
	segs := strings.Split(p, "/")
	parts := make([]string, 0, len(segs)+2)
	parts = append(parts, "action")
	for _, seg := range segs {
		seg = strings.Trim(seg, "{}")
		if seg == "" {
			continue
		}
		parts = append(parts, strings.ToLower(seg))
	}
	parts = append(parts, strings.ToLower(method))
	return strings.Join(parts, ".")
}
