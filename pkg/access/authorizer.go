package access

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/RitoIssei/bot-mng-ns/internal/utils"
	log "github.com/sirupsen/logrus"
)

var ErrForbidden = errors.New("not allowed")

type Role string

const (
	RoleRoom      Role = "rooms"
	RoleAssistant Role = "assistants"
	RoleOperator  Role = "operators"
)

// Member is one entry of an externally owned authorization list.
type Member struct {
	ID   int64
	Name string
	// Area is empty for members valid in every area.
	Area string
}

type Loaders struct {
	Rooms      Loader[[]Member]
	Assistants Loader[[]Member]
	Operators  Loader[[]Member]
}

// Authorizer answers role questions from cached copies of the authorization lists.
type Authorizer struct {
	cache   *Cache[[]Member]
	loaders map[Role]Loader[[]Member]
	admins  []int64
	area    string
	ttl     time.Duration
}

func NewAuthorizer(loaders Loaders, admins []int64, area string, ttl time.Duration, clock utils.Clock) *Authorizer {
	return &Authorizer{
		cache: NewCache[[]Member](clock),
		loaders: map[Role]Loader[[]Member]{
			RoleRoom:      loaders.Rooms,
			RoleAssistant: loaders.Assistants,
			RoleOperator:  loaders.Operators,
		},
		admins: admins,
		area:   area,
		ttl:    ttl,
	}
}

func (a *Authorizer) IsAdmin(userID int64) bool {
	return slices.Contains(a.admins, userID)
}

func (a *Authorizer) IsAssistant(ctx context.Context, userID int64) bool {
	return a.hasMember(ctx, RoleAssistant, userID)
}

func (a *Authorizer) IsOperator(ctx context.Context, userID int64) bool {
	return a.hasMember(ctx, RoleOperator, userID)
}

func (a *Authorizer) IsAllowedRoom(ctx context.Context, chatID int64) bool {
	return a.hasMember(ctx, RoleRoom, chatID)
}

// CanApprove reports whether userID may approve staged budget splits.
func (a *Authorizer) CanApprove(ctx context.Context, userID int64) bool {
	return a.IsAdmin(userID) || a.IsAssistant(ctx, userID)
}

// Members returns the current list for role, filtered to the authorizer's area.
func (a *Authorizer) Members(ctx context.Context, role Role) ([]Member, error) {
	loader, ok := a.loaders[role]
	if !ok || loader == nil {
		return nil, nil
	}
	members, err := a.cache.GetOrLoad(ctx, string(role), loader, a.ttl)
	if err != nil {
		return nil, err
	}
	inArea := make([]Member, 0, len(members))
	for _, m := range members {
		if m.Area == "" || strings.EqualFold(m.Area, a.area) {
			inArea = append(inArea, m)
		}
	}
	return inArea, nil
}

// Refresh drops the cached list for role so the next lookup reloads it.
func (a *Authorizer) Refresh(role Role) {
	a.cache.Invalidate(string(role))
}

func (a *Authorizer) hasMember(ctx context.Context, role Role, id int64) bool {
	members, err := a.Members(ctx, role)
	if err != nil {
		log.Errorf("could not load %s: %v", role, err)
		return false
	}
	return slices.ContainsFunc(members, func(m Member) bool { return m.ID == id })
}
