package rolemanager

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// memoryStore is a hand-rolled, non-SQL Store used only by this package's
// tests, so the resolver/specificity/closure logic is exercised without a
// live Postgres. It mirrors SQLStore's error contract (NotFoundError,
// ConflictError, DependencyError) and its COALESCE(context_id, 0) uniqueness
// semantics, but keeps everything in plain maps guarded by nothing more than
// single-goroutine test usage.
type memoryStore struct {
	nextID int64

	users       map[int64]User
	groups      map[int64]Group
	rightGroups map[int64]RightGroup
	ranges      map[int64]RightTypeRange
	rights      map[int64]Right
	roles       map[int64]Role
	contexts    map[int64]Context

	userGroups  map[int64]map[int64]bool // userID -> set of groupID
	groupEdges  []GroupEdge
	roleRights  map[int64]map[int64]*decimal.Decimal // roleID -> rightID -> rangeValue
	userRoles   []UserContextRole
	groupRoles  []GroupContextRole
	permVersion int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:       make(map[int64]User),
		groups:      make(map[int64]Group),
		rightGroups: make(map[int64]RightGroup),
		ranges:      make(map[int64]RightTypeRange),
		rights:      make(map[int64]Right),
		roles:       make(map[int64]Role),
		contexts:    make(map[int64]Context),
		userGroups:  make(map[int64]map[int64]bool),
		roleRights:  make(map[int64]map[int64]*decimal.Decimal),
		permVersion: 1,
	}
}

func (m *memoryStore) newID() int64 {
	m.nextID++
	return m.nextID
}

// -- Users --

func (m *memoryStore) GetUser(_ context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, &NotFoundError{Entity: "user", Key: id}
	}
	return &u, nil
}

func (m *memoryStore) GetUserByLogin(_ context.Context, login string) (*User, error) {
	for _, u := range m.users {
		if u.Login == login {
			return &u, nil
		}
	}
	return nil, &NotFoundError{Entity: "user", Key: login}
}

func (m *memoryStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, &NotFoundError{Entity: "user", Key: email}
}

func (m *memoryStore) ListUsers(_ context.Context) ([]User, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })
	return out, nil
}

func (m *memoryStore) CreateUser(_ context.Context, u *User) (int64, error) {
	for _, existing := range m.users {
		if existing.Login == u.Login {
			return 0, &ConflictError{Entity: "user", Key: u.Login}
		}
	}
	id := m.newID()
	u.ID = id
	u.CreatedAt = time.Unix(0, 0).UTC()
	u.UpdatedAt = u.CreatedAt
	m.users[id] = *u
	return id, nil
}

func (m *memoryStore) UpdateUser(_ context.Context, u *User) error {
	if _, ok := m.users[u.ID]; !ok {
		return &NotFoundError{Entity: "user", Key: u.ID}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memoryStore) DeleteUser(_ context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return &NotFoundError{Entity: "user", Key: id}
	}
	delete(m.users, id)
	return nil
}

func (m *memoryStore) CountUserContextRoles(_ context.Context, userID int64) (int, error) {
	n := 0
	for _, a := range m.userRoles {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

// -- Groups --

func (m *memoryStore) GetGroup(_ context.Context, id int64) (*Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, &NotFoundError{Entity: "group", Key: id}
	}
	return &g, nil
}

func (m *memoryStore) GetGroupByName(_ context.Context, name string) (*Group, error) {
	for _, g := range m.groups {
		if g.Name == name {
			return &g, nil
		}
	}
	return nil, &NotFoundError{Entity: "group", Key: name}
}

func (m *memoryStore) ListGroups(_ context.Context) ([]Group, error) {
	var out []Group
	for _, g := range m.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) CreateGroup(_ context.Context, g *Group) (int64, error) {
	for _, existing := range m.groups {
		if existing.Name == g.Name {
			return 0, &ConflictError{Entity: "group", Key: g.Name}
		}
	}
	id := m.newID()
	g.ID = id
	m.groups[id] = *g
	return id, nil
}

func (m *memoryStore) UpdateGroup(_ context.Context, g *Group) error {
	if _, ok := m.groups[g.ID]; !ok {
		return &NotFoundError{Entity: "group", Key: g.ID}
	}
	m.groups[g.ID] = *g
	return nil
}

func (m *memoryStore) DeleteGroup(_ context.Context, id int64) error {
	if _, ok := m.groups[id]; !ok {
		return &NotFoundError{Entity: "group", Key: id}
	}
	delete(m.groups, id)
	return nil
}

func (m *memoryStore) AddGroupMember(_ context.Context, userID, groupID int64) error {
	if m.userGroups[userID] == nil {
		m.userGroups[userID] = make(map[int64]bool)
	}
	m.userGroups[userID][groupID] = true
	return nil
}

func (m *memoryStore) RemoveGroupMember(_ context.Context, userID, groupID int64) error {
	delete(m.userGroups[userID], groupID)
	return nil
}

func (m *memoryStore) ListUserGroups(_ context.Context, userID int64) ([]int64, error) {
	var out []int64
	for gid := range m.userGroups[userID] {
		out = append(out, gid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *memoryStore) ListGroupMembers(_ context.Context, groupID int64) ([]int64, error) {
	var out []int64
	for uid, groups := range m.userGroups {
		if groups[groupID] {
			out = append(out, uid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *memoryStore) CountGroupMembers(_ context.Context, groupID int64) (int, error) {
	n := 0
	for _, groups := range m.userGroups {
		if groups[groupID] {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) AddSubgroup(_ context.Context, parentGroupID, childGroupID int64) error {
	if parentGroupID == childGroupID {
		return ErrSelfParent
	}
	if wouldCycle(parentGroupID, childGroupID, m.groupEdges) {
		return ErrCyclicGroupEdge
	}
	for _, e := range m.groupEdges {
		if e.ParentGroupID == parentGroupID && e.ChildGroupID == childGroupID {
			return nil
		}
	}
	m.groupEdges = append(m.groupEdges, GroupEdge{ParentGroupID: parentGroupID, ChildGroupID: childGroupID})
	m.permVersion++
	return nil
}

func (m *memoryStore) RemoveSubgroup(_ context.Context, parentGroupID, childGroupID int64) error {
	out := m.groupEdges[:0]
	for _, e := range m.groupEdges {
		if e.ParentGroupID == parentGroupID && e.ChildGroupID == childGroupID {
			continue
		}
		out = append(out, e)
	}
	m.groupEdges = out
	m.permVersion++
	return nil
}

func (m *memoryStore) ListGroupEdges(_ context.Context) ([]GroupEdge, error) {
	out := make([]GroupEdge, len(m.groupEdges))
	copy(out, m.groupEdges)
	return out, nil
}

func (m *memoryStore) CountGroupEdges(_ context.Context, groupID int64) (int, error) {
	n := 0
	for _, e := range m.groupEdges {
		if e.ParentGroupID == groupID || e.ChildGroupID == groupID {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) CountGroupContextRoles(_ context.Context, groupID int64) (int, error) {
	n := 0
	for _, a := range m.groupRoles {
		if a.GroupID == groupID {
			n++
		}
	}
	return n, nil
}

// -- Right groups and range definitions --

func (m *memoryStore) GetRightGroup(_ context.Context, id int64) (*RightGroup, error) {
	rg, ok := m.rightGroups[id]
	if !ok {
		return nil, &NotFoundError{Entity: "right_group", Key: id}
	}
	return &rg, nil
}

func (m *memoryStore) ListRightGroups(_ context.Context) ([]RightGroup, error) {
	var out []RightGroup
	for _, rg := range m.rightGroups {
		out = append(out, rg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) CreateRightGroup(_ context.Context, rg *RightGroup) (int64, error) {
	id := m.newID()
	rg.ID = id
	m.rightGroups[id] = *rg
	return id, nil
}

func (m *memoryStore) UpdateRightGroup(_ context.Context, rg *RightGroup) error {
	if _, ok := m.rightGroups[rg.ID]; !ok {
		return &NotFoundError{Entity: "right_group", Key: rg.ID}
	}
	m.rightGroups[rg.ID] = *rg
	return nil
}

func (m *memoryStore) DeleteRightGroup(_ context.Context, id int64) error {
	delete(m.rightGroups, id)
	return nil
}

func (m *memoryStore) CountRightsInGroup(_ context.Context, rightGroupID int64) (int, error) {
	n := 0
	for _, r := range m.rights {
		if r.RightGroupID == rightGroupID {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) GetRightTypeRange(_ context.Context, id int64) (*RightTypeRange, error) {
	r, ok := m.ranges[id]
	if !ok {
		return nil, &NotFoundError{Entity: "righttype_range", Key: id}
	}
	return &r, nil
}

func (m *memoryStore) ListRightTypeRanges(_ context.Context) ([]RightTypeRange, error) {
	var out []RightTypeRange
	for _, r := range m.ranges {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) CreateRightTypeRange(_ context.Context, r *RightTypeRange) (int64, error) {
	id := m.newID()
	r.ID = id
	m.ranges[id] = *r
	return id, nil
}

func (m *memoryStore) UpdateRightTypeRange(_ context.Context, r *RightTypeRange) error {
	if _, ok := m.ranges[r.ID]; !ok {
		return &NotFoundError{Entity: "righttype_range", Key: r.ID}
	}
	m.ranges[r.ID] = *r
	return nil
}

func (m *memoryStore) DeleteRightTypeRange(_ context.Context, id int64) error {
	delete(m.ranges, id)
	return nil
}

func (m *memoryStore) CountRightsUsingRange(_ context.Context, rangeID int64) (int, error) {
	n := 0
	for _, r := range m.rights {
		if r.RightTypeRangeID != nil && *r.RightTypeRangeID == rangeID {
			n++
		}
	}
	return n, nil
}

// -- Rights --

func (m *memoryStore) GetRight(_ context.Context, id int64) (*Right, error) {
	r, ok := m.rights[id]
	if !ok {
		return nil, &NotFoundError{Entity: "right", Key: id}
	}
	return &r, nil
}

func (m *memoryStore) GetRightByName(_ context.Context, name string) (*Right, error) {
	for _, r := range m.rights {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, &NotFoundError{Entity: "right", Key: name}
}

func (m *memoryStore) ListRights(_ context.Context) ([]Right, error) {
	var out []Right
	for _, r := range m.rights {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) CreateRight(_ context.Context, r *Right) (int64, error) {
	for _, existing := range m.rights {
		if existing.Name == r.Name {
			return 0, &ConflictError{Entity: "right", Key: r.Name}
		}
	}
	id := m.newID()
	r.ID = id
	m.rights[id] = *r
	return id, nil
}

func (m *memoryStore) UpdateRight(_ context.Context, r *Right) error {
	if _, ok := m.rights[r.ID]; !ok {
		return &NotFoundError{Entity: "right", Key: r.ID}
	}
	m.rights[r.ID] = *r
	return nil
}

func (m *memoryStore) DeleteRight(_ context.Context, id int64) error {
	delete(m.rights, id)
	return nil
}

func (m *memoryStore) CountRoleRightsForRight(_ context.Context, rightID int64) (int, error) {
	n := 0
	for _, attached := range m.roleRights {
		if _, ok := attached[rightID]; ok {
			n++
		}
	}
	return n, nil
}

// -- Roles --

func (m *memoryStore) GetRole(_ context.Context, id int64) (*Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return nil, &NotFoundError{Entity: "role", Key: id}
	}
	return &r, nil
}

func (m *memoryStore) GetRoleByName(_ context.Context, name string) (*Role, error) {
	for _, r := range m.roles {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, &NotFoundError{Entity: "role", Key: name}
}

func (m *memoryStore) ListRoles(_ context.Context) ([]Role, error) {
	var out []Role
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) CreateRole(_ context.Context, r *Role) (int64, error) {
	for _, existing := range m.roles {
		if existing.Name == r.Name {
			return 0, &ConflictError{Entity: "role", Key: r.Name}
		}
	}
	id := m.newID()
	r.ID = id
	m.roles[id] = *r
	return id, nil
}

func (m *memoryStore) UpdateRole(_ context.Context, r *Role) error {
	if _, ok := m.roles[r.ID]; !ok {
		return &NotFoundError{Entity: "role", Key: r.ID}
	}
	m.roles[r.ID] = *r
	return nil
}

func (m *memoryStore) DeleteRole(_ context.Context, id int64) error {
	delete(m.roles, id)
	return nil
}

func (m *memoryStore) CountRoleAssignments(_ context.Context, roleID int64) (int, error) {
	n := 0
	for _, a := range m.userRoles {
		if a.RoleID == roleID {
			n++
		}
	}
	for _, a := range m.groupRoles {
		if a.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) AttachRight(_ context.Context, rr *RoleRight) error {
	if m.roleRights[rr.RoleID] == nil {
		m.roleRights[rr.RoleID] = make(map[int64]*decimal.Decimal)
	}
	m.roleRights[rr.RoleID][rr.RightID] = rr.RangeValue
	return nil
}

func (m *memoryStore) DetachRight(_ context.Context, roleID, rightID int64) error {
	delete(m.roleRights[roleID], rightID)
	return nil
}

func (m *memoryStore) ListRoleRights(_ context.Context, roleID int64) ([]RoleRight, error) {
	var out []RoleRight
	for rightID, rv := range m.roleRights[roleID] {
		out = append(out, RoleRight{RoleID: roleID, RightID: rightID, RangeValue: rv})
	}
	return out, nil
}

// -- Contexts --

func (m *memoryStore) GetContext(_ context.Context, id int64) (*Context, error) {
	c, ok := m.contexts[id]
	if !ok {
		return nil, &NotFoundError{Entity: "context", Key: id}
	}
	return &c, nil
}

func (m *memoryStore) GetContextByName(_ context.Context, name string) (*Context, error) {
	for _, c := range m.contexts {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, &NotFoundError{Entity: "context", Key: name}
}

func (m *memoryStore) ListContexts(_ context.Context) ([]Context, error) {
	var out []Context
	for _, c := range m.contexts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) CreateContext(_ context.Context, c *Context) (int64, error) {
	for _, existing := range m.contexts {
		if existing.Name == c.Name {
			return 0, &ConflictError{Entity: "context", Key: c.Name}
		}
	}
	id := m.newID()
	c.ID = id
	m.contexts[id] = *c
	return id, nil
}

func (m *memoryStore) UpdateContext(_ context.Context, c *Context) error {
	if _, ok := m.contexts[c.ID]; !ok {
		return &NotFoundError{Entity: "context", Key: c.ID}
	}
	m.contexts[c.ID] = *c
	return nil
}

func (m *memoryStore) DeleteContext(_ context.Context, id int64) error {
	delete(m.contexts, id)
	return nil
}

func (m *memoryStore) CountContextAssignments(_ context.Context, contextID int64) (int, error) {
	n := 0
	for _, a := range m.userRoles {
		if a.ContextID != nil && *a.ContextID == contextID {
			n++
		}
	}
	for _, a := range m.groupRoles {
		if a.ContextID != nil && *a.ContextID == contextID {
			n++
		}
	}
	return n, nil
}

// -- Assignments --

func sameContext(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *memoryStore) AssignUserContextRole(_ context.Context, a *UserContextRole) error {
	for _, existing := range m.userRoles {
		if existing.UserID == a.UserID && existing.RoleID == a.RoleID && sameContext(existing.ContextID, a.ContextID) {
			return nil
		}
	}
	m.userRoles = append(m.userRoles, *a)
	return nil
}

func (m *memoryStore) RevokeUserContextRole(_ context.Context, userID int64, contextID *int64, roleID int64) error {
	out := m.userRoles[:0]
	for _, a := range m.userRoles {
		if a.UserID == userID && a.RoleID == roleID && sameContext(a.ContextID, contextID) {
			continue
		}
		out = append(out, a)
	}
	m.userRoles = out
	return nil
}

func (m *memoryStore) ListUserContextRoles(_ context.Context, userID int64) ([]UserContextRole, error) {
	var out []UserContextRole
	for _, a := range m.userRoles {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryStore) AssignGroupContextRole(_ context.Context, a *GroupContextRole) error {
	for _, existing := range m.groupRoles {
		if existing.GroupID == a.GroupID && existing.RoleID == a.RoleID && sameContext(existing.ContextID, a.ContextID) {
			return nil
		}
	}
	m.groupRoles = append(m.groupRoles, *a)
	return nil
}

func (m *memoryStore) RevokeGroupContextRole(_ context.Context, groupID int64, contextID *int64, roleID int64) error {
	out := m.groupRoles[:0]
	for _, a := range m.groupRoles {
		if a.GroupID == groupID && a.RoleID == roleID && sameContext(a.ContextID, contextID) {
			continue
		}
		out = append(out, a)
	}
	m.groupRoles = out
	return nil
}

func (m *memoryStore) ListGroupContextRoles(_ context.Context, groupID int64) ([]GroupContextRole, error) {
	var out []GroupContextRole
	for _, a := range m.groupRoles {
		if a.GroupID == groupID {
			out = append(out, a)
		}
	}
	return out, nil
}

// -- Resolution --

func (m *memoryStore) FindCandidates(_ context.Context, userID int64, contextID *int64) ([]Candidate, error) {
	var direct []int64
	for gid := range m.userGroups[userID] {
		direct = append(direct, gid)
	}
	closure, _ := resolveGroupClosure(direct, m.groupEdges, maxGroupDepth)

	var out []Candidate

	u, ok := m.users[userID]
	if ok {
		for _, a := range m.userRoles {
			if a.UserID != userID {
				continue
			}
			if !contextMatches(a.ContextID, contextID) {
				continue
			}
			role, ok := m.roles[a.RoleID]
			if !ok {
				continue
			}
			for rightID, rv := range m.roleRights[a.RoleID] {
				right, ok := m.rights[rightID]
				if !ok {
					continue
				}
				out = append(out, m.buildCandidate(SourceUser, u.ID, u.Login, role.Name, a.ContextID, right, rv, 0))
			}
		}
	}

	for _, a := range m.groupRoles {
		distance, inClosure := closure[a.GroupID]
		if !inClosure {
			continue
		}
		if !contextMatches(a.ContextID, contextID) {
			continue
		}
		group, ok := m.groups[a.GroupID]
		if !ok {
			continue
		}
		role, ok := m.roles[a.RoleID]
		if !ok {
			continue
		}
		for rightID, rv := range m.roleRights[a.RoleID] {
			right, ok := m.rights[rightID]
			if !ok {
				continue
			}
			out = append(out, m.buildCandidate(SourceGroup, group.ID, group.Name, role.Name, a.ContextID, right, rv, distance))
		}
	}

	return out, nil
}

func (m *memoryStore) buildCandidate(kind SourceKind, sourceID int64, sourceName, roleName string, contextID *int64, right Right, rv *decimal.Decimal, distance int) Candidate {
	c := Candidate{
		SourceKind:        kind,
		SourceID:          sourceID,
		SourceDisplayName: sourceName,
		RoleName:          roleName,
		RightName:         right.Name,
		RightType:         right.Type,
		RangeValue:        rv,
		Distance:          distance,
	}
	if contextID == nil {
		c.ContextKind = ContextGlobal
	} else {
		c.ContextKind = ContextSpecific
		if ctx, ok := m.contexts[*contextID]; ok {
			c.ContextDisplayName = ctx.Name
		}
	}
	return c
}

func contextMatches(assignmentContext, queryContext *int64) bool {
	if assignmentContext == nil {
		return true
	}
	return queryContext != nil && *assignmentContext == *queryContext
}

func (m *memoryStore) ClosureTruncated(_ context.Context, userID int64) (bool, error) {
	var direct []int64
	for gid := range m.userGroups[userID] {
		direct = append(direct, gid)
	}
	_, truncated := resolveGroupClosure(direct, m.groupEdges, maxGroupDepth)
	return truncated, nil
}

func (m *memoryStore) PermissionsVersion(_ context.Context) (int64, error) {
	return m.permVersion, nil
}

func (m *memoryStore) BumpPermissionsVersion(_ context.Context) (int64, error) {
	m.permVersion++
	return m.permVersion, nil
}

var _ Store = (*memoryStore)(nil)
