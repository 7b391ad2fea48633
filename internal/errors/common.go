package errors

// MissingParamsMsg is the stable message returned when required fields are absent.
const MissingParamsMsg = "Missing required parameters"

func InvalidBodyErr(err error) error {
	return E(Invalid, "invalid request body", err)
}

func ValidationFailedErr(err error) error {
	return E(Invalid, "validation failed", err)
}

// MissingParamsErr reports the absent fields under MissingParamsMsg.
func MissingParamsErr(fields ...string) error {
	ve := ValidationErrs()
	for _, f := range fields {
		ve.Add(f, "cannot be empty")
	}
	return E(Invalid, MissingParamsMsg, ve.Err())
}

func TransactionNotFoundErr(requestID string) error {
	return E(NotFound, "transaction not found", &keyErr{key: requestID})
}

type keyErr struct{ key string }

func (k *keyErr) Error() string { return "request id " + k.key }
