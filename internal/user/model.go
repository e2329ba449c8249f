package user

// User is a roster entry. Online is never persisted in the durable store;
// it is derived from live presence in the hot store.
type User struct {
	ID       string `json:"_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
	Online   bool   `json:"online"`
}
