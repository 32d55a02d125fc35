package model

// UserLoginInfo describes an external login as exchanged with callers.
type UserLoginInfo struct {
	LoginProvider       string
	ProviderKey         string
	ProviderDisplayName string
}

// UserLogin represents an external login document. Its key is the
// (LoginProvider, ProviderKey) composite; the container is partitioned by
// ProviderKey so login resolution is a single-partition operation.
type UserLogin struct {
	LoginProvider       string `json:"LoginProvider"`
	ProviderKey         string `json:"ProviderKey"`
	ProviderDisplayName string `json:"ProviderDisplayName,omitempty"`
	UserID              string `json:"UserId"`
}

// NewUserLogin creates a login edge for the given user.
func NewUserLogin(userID string, info UserLoginInfo) *UserLogin {
	return &UserLogin{
		LoginProvider:       info.LoginProvider,
		ProviderKey:         info.ProviderKey,
		ProviderDisplayName: info.ProviderDisplayName,
		UserID:              userID,
	}
}

func (l *UserLogin) Info() UserLoginInfo {
	return UserLoginInfo{
		LoginProvider:       l.LoginProvider,
		ProviderKey:         l.ProviderKey,
		ProviderDisplayName: l.ProviderDisplayName,
	}
}

func (l *UserLogin) DocumentID() string { return l.LoginProvider + "|" + l.ProviderKey }

func (l *UserLogin) PartitionKeyValue() any { return l.ProviderKey }

// UserRole represents a user/role membership edge. It is keyed by the
// (UserId, RoleId) composite and partitioned by UserId, so membership
// changes for one user stay within a single partition.
type UserRole struct {
	UserID string `json:"UserId"`
	RoleID string `json:"RoleId"`
}

func NewUserRole(userID, roleID string) *UserRole {
	return &UserRole{UserID: userID, RoleID: roleID}
}

func (r *UserRole) DocumentID() string { return r.UserID + "|" + r.RoleID }

func (r *UserRole) PartitionKeyValue() any { return r.UserID }
