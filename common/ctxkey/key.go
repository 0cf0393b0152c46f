package ctxkey

const (
	SpecificCredentialId = "specific_credential_id"
)
