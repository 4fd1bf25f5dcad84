package event

// Context identifies who an event happened to and which tenant owns it.
// Either field may be empty when the payload does not carry it; downstream
// code treats an empty field as "cannot resolve" and drops the event.
type Context struct {
	CompanyID string
	MemberID  string
}

// Complete reports whether both ids were resolved.
func (c Context) Complete() bool {
	return c.CompanyID != "" && c.MemberID != ""
}

// ExtractContext pulls the owning company id and the member's platform id
// out of an arbitrary event payload. Payload shape varies by event family:
// ids may sit at the top level, under a "data" sub-object, or inside
// object forms like {"member": {"id": ...}}. Missing or malformed fields
// yield an empty string, never a panic.
func ExtractContext(payload map[string]interface{}) Context {
	if payload == nil {
		return Context{}
	}

	ctx := Context{
		CompanyID: firstString(payload, "companyId", "company_id"),
		MemberID:  firstString(payload, "memberId", "member_id"),
	}

	// Object forms at the top level
	if ctx.CompanyID == "" {
		ctx.CompanyID = nestedID(payload, "company", "account")
	}
	if ctx.MemberID == "" {
		ctx.MemberID = nestedID(payload, "member")
	}

	// Payment/subscription families nest everything under "data"
	if data, ok := payload["data"].(map[string]interface{}); ok {
		if ctx.CompanyID == "" {
			ctx.CompanyID = firstString(data, "companyId", "company_id")
		}
		if ctx.CompanyID == "" {
			ctx.CompanyID = nestedID(data, "company", "account")
		}
		if ctx.MemberID == "" {
			ctx.MemberID = firstString(data, "memberId", "member_id")
		}
		if ctx.MemberID == "" {
			ctx.MemberID = nestedID(data, "member")
		}
	}

	return ctx
}

// firstString returns the first of the named keys holding a non-empty string.
func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// nestedID looks for {"<key>": {"id": "..."}} under any of the given keys.
func nestedID(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if obj, ok := m[k].(map[string]interface{}); ok {
			if s, ok := obj["id"].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
