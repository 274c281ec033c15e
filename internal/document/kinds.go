package document

import "fmt"

// Sender role of a participant. The wire protocol uses "From"; "sender" is
// accepted as a synonym.
const (
	RoleFrom    = "From"
	RoleTo      = "To"
	RoleCc      = "Cc"
	RoleBcc     = "Bcc"
	RoleReplyTo = "Reply-To"
)

var (
	ParticipantSchema = NewSchema("participant", "",
		str("address", true),
		str("label", true),
		str("protocol", true),
		str("type", true),
		Field{Name: "contact_ids", Type: TypeUUIDs, Writable: true},
	)

	AttachmentSchema = NewSchema("attachment", "attachment_id",
		id("attachment_id", false),
		str("content_type", true),
		str("file_name", true),
		flag("is_inline", true),
		num("size", false),
		str("url", false),
	)

	ExternalReferencesSchema = NewSchema("external_references", "",
		str("discussion_id", false),
		str("message_id", false),
		str("parent_id", false),
	)

	PrivacyIndexSchema = NewSchema("pi", "",
		num("comportment", false),
		num("context", false),
		num("technic", false),
		num("version", false),
		ts("date_update", false),
	)

	// MessageSchema describes messages; drafts are messages with is_draft set.
	MessageSchema = withBodyAlias(NewSchema("message", "message_id",
		list("attachments", AttachmentSchema, false),
		str("body_html", true),
		str("body_plain", true),
		ts("date", true),
		ts("date_delete", false),
		ts("date_insert", false),
		id("discussion_id", true),
		object("external_references", ExternalReferencesSchema, false),
		Field{Name: "user_identities", Type: TypeUUIDs, Writable: true},
		num("importance_level", true),
		flag("is_answered", true),
		flag("is_draft", false),
		flag("is_unread", true),
		flag("is_received", false),
		id("message_id", false),
		id("parent_id", true),
		list("participants", ParticipantSchema, true),
		Field{Name: "privacy_features", Type: TypeStringMap},
		object("pi", PrivacyIndexSchema, false),
		id("raw_msg_id", false),
		str("subject", true),
		Field{Name: "tags", Type: TypeStrings},
		str("type", false),
		str("user_id", false),
	), KindMessage)
)

var (
	PostalAddressSchema = NewSchema("postal_address", "address_id",
		id("address_id", false),
		str("city", true),
		str("country", true),
		flag("is_primary", true),
		str("label", true),
		str("postal_code", true),
		str("region", true),
		str("street", true),
		str("type", true),
	)

	EmailSchema = NewSchema("email", "email_id",
		id("email_id", false),
		str("address", true),
		flag("is_primary", true),
		str("label", true),
		str("type", true),
	)

	IMSchema = NewSchema("im", "im_id",
		id("im_id", false),
		str("address", true),
		flag("is_primary", true),
		str("label", true),
		str("protocol", true),
		str("type", true),
	)

	PhoneSchema = NewSchema("phone", "phone_id",
		id("phone_id", false),
		flag("is_primary", true),
		str("number", true),
		str("type", true),
		str("uri", true),
	)

	OrganizationSchema = NewSchema("organization", "organization_id",
		id("organization_id", false),
		flag("deleted", true),
		str("department", true),
		flag("is_primary", true),
		str("job_description", true),
		str("label", true),
		str("name", true),
		str("title", true),
		str("type", true),
	)

	SocialIdentitySchema = NewSchema("social_identity", "social_id",
		id("social_id", false),
		Field{Name: "infos", Type: TypeStringMap, Writable: true},
		str("name", true),
		str("type", true),
	)

	PublicKeySchema = NewSchema("public_key", "key_id",
		id("key_id", false),
		ts("expire_date", true),
		str("fingerprint", true),
		str("key", true),
		str("name", true),
		num("size", true),
		str("type", true),
	)

	ContactSchema = withKind(NewSchema("contact", "contact_id",
		str("additional_name", true),
		list("addresses", PostalAddressSchema, true),
		str("avatar", true),
		id("contact_id", false),
		ts("date_insert", false),
		ts("date_update", false),
		list("emails", EmailSchema, true),
		str("family_name", true),
		str("given_name", true),
		Field{Name: "groups", Type: TypeStrings, Writable: true},
		list("identities", SocialIdentitySchema, true),
		list("ims", IMSchema, true),
		Field{Name: "infos", Type: TypeStringMap, Writable: true},
		str("name_prefix", true),
		str("name_suffix", true),
		list("organizations", OrganizationSchema, true),
		list("phones", PhoneSchema, true),
		object("pi", PrivacyIndexSchema, false),
		Field{Name: "privacy_features", Type: TypeStringMap},
		list("public_keys", PublicKeySchema, true),
		Field{Name: "tags", Type: TypeStrings},
		str("title", true),
		str("user_id", false),
	), KindContact)
)

func withKind(s *Schema, k Kind) *Schema {
	s.Kind = k
	return s
}

func withBodyAlias(s *Schema, k Kind) *Schema {
	s.bodyAlias = true
	return withKind(s, k)
}

var schemas = map[Kind]*Schema{
	KindMessage: MessageSchema,
	KindContact: ContactSchema,
}

// Lookup returns the schema registered for a kind.
func Lookup(k Kind) (*Schema, error) {
	s, ok := schemas[k]
	if !ok {
		return nil, fmt.Errorf("unknown document kind %q", k)
	}
	return s, nil
}

// Kinds lists the registered document kinds.
func Kinds() []Kind {
	return []Kind{KindMessage, KindContact}
}
