package document

// ProjectOptions controls the transport representation.
type ProjectOptions struct {
	// PreferHTML exposes body_html as `body` even when body_plain is also set.
	PreferHTML bool
	// Raw keeps body_plain/body_html instead of the `body` alias. Used for the
	// index projection.
	Raw bool
}

// Project returns the transport-shaped representation of d. The result is a
// fresh map safe to marshal or mutate.
func Project(d *Document, opts ProjectOptions) map[string]interface{} {
	out := CloneFields(d.Fields)
	if out == nil {
		out = map[string]interface{}{}
	}
	s, err := Lookup(d.Kind)
	if err != nil || !s.HasBodyAlias() || opts.Raw {
		return out
	}
	plain, _ := out["body_plain"].(string)
	html, _ := out["body_html"].(string)
	delete(out, "body_plain")
	delete(out, "body_html")
	switch {
	case html != "" && (opts.PreferHTML || plain == ""):
		out["body"] = html
		out["body_type"] = "html"
	default:
		out["body"] = plain
		out["body_type"] = "plain"
	}
	return out
}
