package tokenclient

// AccessToken is the token service response payload.
type AccessToken struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// String keeps secrets out of log lines.
func (t *AccessToken) String() string {
	if t == nil {
		return "<nil>"
	}
	return "AccessToken{token_type=" + t.TokenType + ", access_token=<redacted>}"
}
