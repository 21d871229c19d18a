package catalog

import (
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/arthur-debert/querysync/types"
)

var (
	// UserRoles are the roles users can have
	UserRoles = []string{"admin", "user", "moderator"}
	// UserStatuses are the account states users can be in
	UserStatuses = []string{"active", "inactive", "pending"}
)

var userRules = map[string]string{
	"role":   `value == "all" || item.role == value`,
	"status": `value == "all" || item.status == value`,
	"search": `lower(item.name) contains lower(string(value)) || lower(item.email) contains lower(string(value))`,
}

var userSortKeys = []string{"name", "email", "role", "status", "lastLogin", "createdAt"}

type seedUser struct {
	name, email, role, status string
	lastLogin, createdAt      string
}

var seedUsers = []seedUser{
	{"John Doe", "john@example.com", "admin", "active", "2024-01-15T10:30:00Z", "2023-06-01T00:00:00Z"},
	{"Jane Smith", "jane@example.com", "user", "active", "2024-01-14T15:45:00Z", "2023-07-15T00:00:00Z"},
	{"Bob Johnson", "bob@example.com", "moderator", "inactive", "2024-01-10T09:20:00Z", "2023-08-20T00:00:00Z"},
	{"Alice Brown", "alice@example.com", "user", "pending", "", "2024-01-12T00:00:00Z"},
	{"Charlie Wilson", "charlie@example.com", "user", "active", "2024-01-13T14:30:00Z", "2023-09-10T00:00:00Z"},
	{"Diana Prince", "diana@example.com", "admin", "active", "2024-01-15T08:15:00Z", "2023-05-01T00:00:00Z"},
	{"Eve Adams", "eve@example.com", "moderator", "active", "2024-01-14T16:20:00Z", "2023-10-15T00:00:00Z"},
	{"Frank Miller", "frank@example.com", "user", "inactive", "2024-01-05T11:10:00Z", "2023-11-01T00:00:00Z"},
	{"Grace Lee", "grace@example.com", "user", "active", "2024-01-15T12:45:00Z", "2023-12-01T00:00:00Z"},
	{"Henry Davis", "henry@example.com", "user", "pending", "", "2024-01-10T00:00:00Z"},
}

// users returns the fixed demo users followed by extra generated ones.
// Users that never logged in have no lastLogin field.
func users(f *gofakeit.Faker, extra int) []types.Record {
	records := make([]types.Record, 0, len(seedUsers)+extra)
	for i, u := range seedUsers {
		rec := types.Record{
			"id":        float64(i + 1),
			"name":      u.name,
			"email":     u.email,
			"role":      u.role,
			"status":    u.status,
			"createdAt": u.createdAt,
		}
		if u.lastLogin != "" {
			rec["lastLogin"] = u.lastLogin
		}
		records = append(records, rec)
	}

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < extra; i++ {
		name := f.Name()
		created := f.DateRange(start, end).UTC()
		rec := types.Record{
			"id":        float64(len(seedUsers) + i + 1),
			"name":      name,
			"email":     strings.ToLower(f.Username()) + "@example.com",
			"role":      f.RandomString(UserRoles),
			"status":    f.RandomString(UserStatuses),
			"createdAt": created.Format(time.RFC3339),
		}
		if f.Bool() {
			rec["lastLogin"] = f.DateRange(created, end).UTC().Format(time.RFC3339)
		}
		records = append(records, rec)
	}
	return records
}
