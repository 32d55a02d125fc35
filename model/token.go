package model

// UserToken represents an authentication token scoped to a user, keyed by
// the (UserId, LoginProvider, Name) composite and partitioned by UserId.
type UserToken struct {
	UserID        string `json:"UserId"`
	LoginProvider string `json:"LoginProvider"`
	Name          string `json:"Name"`
	Value         string `json:"Value,omitempty"`
}

func NewUserToken(userID, loginProvider, name, value string) *UserToken {
	return &UserToken{
		UserID:        userID,
		LoginProvider: loginProvider,
		Name:          name,
		Value:         value,
	}
}

func (t *UserToken) DocumentID() string { return t.UserID + "|" + t.LoginProvider + "|" + t.Name }

func (t *UserToken) PartitionKeyValue() any { return t.UserID }
