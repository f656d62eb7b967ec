package users

type UserRepo interface {
	Upsert(user *User) error
	Delete(id string) error
	GetByEmail(email string) (*User, error)
	GetByID(id string) (*User, error)
	List(tenantID string, offset, limit int) ([]*User, error)
	SetBlocked(id string, blocked bool) error
	SetVerified(id string, verified bool) error
}
