// Package framework provides the room-role permission system: fine-grained
// chat actions grouped by concern, each gated by the minimum room role
// required to perform it, with grant-based overrides and audit logging.
package framework

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// RoomRole is a member's standing within a room, ordered from least to
// most privileged: guest < member < admin < owner.
type RoomRole int

const (
	RoleGuest RoomRole = iota
	RoleMember
	RoleAdmin
	RoleOwner
)

// String returns the lowercase role name.
func (r RoomRole) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// AtLeast reports whether r meets or exceeds min in the role hierarchy.
func (r RoomRole) AtLeast(min RoomRole) bool {
	return r >= min
}

// ProtectionLevel mirrors the room-role hierarchy: it is the minimum role
// a permission's protection level allows.
type ProtectionLevel int

const (
	// ProtectionNormal permissions are available to any room member, guests included.
	ProtectionNormal ProtectionLevel = iota
	// ProtectionDangerous permissions require at least the admin role.
	ProtectionDangerous
	// ProtectionSignature permissions are owner-only (room deletion, ownership transfer).
	ProtectionSignature
)

// String returns a human-readable protection level.
func (p ProtectionLevel) String() string {
	switch p {
	case ProtectionNormal:
		return "normal"
	case ProtectionDangerous:
		return "dangerous"
	case ProtectionSignature:
		return "signature"
	default:
		return "unknown"
	}
}

// MinimumRole returns the least privileged role that satisfies this
// protection level.
func (p ProtectionLevel) MinimumRole() RoomRole {
	switch p {
	case ProtectionDangerous:
		return RoleAdmin
	case ProtectionSignature:
		return RoleOwner
	default:
		return RoleGuest
	}
}

// Permission represents a single chat action that can be checked against a
// member's role, e.g. "chat.room.DELETE_MESSAGE".
type Permission struct {
	Name            string
	Group           string
	Description     string
	ProtectionLevel ProtectionLevel
}

// PermissionGroup clusters related permissions for display and bulk grants.
type PermissionGroup struct {
	Name        string
	Description string
	Priority    int
}

// Standard permission groups.
var (
	GroupRoomContent = &PermissionGroup{
		Name:        "ROOM_CONTENT",
		Description: "Posting, editing, and moderating messages",
		Priority:    100,
	}
	GroupRoomMembership = &PermissionGroup{
		Name:        "ROOM_MEMBERSHIP",
		Description: "Inviting, removing, and muting members",
		Priority:    90,
	}
	GroupRoomAdmin = &PermissionGroup{
		Name:        "ROOM_ADMIN",
		Description: "Room settings, deletion, and ownership",
		Priority:    80,
	}
)

// Standard chat room permissions.
const (
	PermissionSendMessage      = "chat.room.SEND_MESSAGE"
	PermissionEditOwnMessage   = "chat.room.EDIT_OWN_MESSAGE"
	PermissionDeleteOwnMessage = "chat.room.DELETE_OWN_MESSAGE"
	PermissionReactMessage     = "chat.room.REACT_MESSAGE"
	PermissionDeleteMessage    = "chat.room.DELETE_MESSAGE"
	PermissionPinMessage       = "chat.room.PIN_MESSAGE"

	PermissionInviteMember  = "chat.room.INVITE_MEMBER"
	PermissionRemoveMember  = "chat.room.REMOVE_MEMBER"
	PermissionMuteMember    = "chat.room.MUTE_MEMBER"
	PermissionManageMembers = "chat.room.MANAGE_MEMBERS"

	PermissionUpdateRoom        = "chat.room.UPDATE_ROOM"
	PermissionDeleteRoom        = "chat.room.DELETE_ROOM"
	PermissionTransferOwnership = "chat.room.TRANSFER_OWNERSHIP"
)

// PermissionResult is the outcome of a permission check.
type PermissionResult int

const (
	PermissionDenied PermissionResult = iota
	PermissionGranted
)

// String renders the result for logging.
func (r PermissionResult) String() string {
	if r == PermissionGranted {
		return "granted"
	}
	return "denied"
}

// PermissionGrant is an explicit override that grants a member a permission
// beyond what their role alone would allow (or a temporary room-specific
// exception), independent of the role hierarchy.
type PermissionGrant struct {
	Permission string
	GrantedAt  time.Time
	GrantedBy  string
	ExpiresAt  time.Time
}

// IsExpired checks if the grant has expired.
func (g *PermissionGrant) IsExpired() bool {
	if g.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(g.ExpiresAt)
}

// AuditEntry records one permission decision for the security audit log.
type AuditEntry struct {
	Timestamp  time.Time
	Operation  string
	RoomID     string
	MemberID   string
	Permission string
	Result     PermissionResult
	Details    map[string]any
}

// Manager evaluates room permissions: a member's role satisfies a
// permission's protection level unless an explicit override says
// otherwise. CheckPermission is the single choke point every chat
// operation calls before mutating state.
type Manager struct {
	mu            sync.RWMutex
	permissions   map[string]*Permission
	groups        map[string]*PermissionGroup
	grants        map[string]map[string]*PermissionGrant // roomID:memberID -> permission -> grant
	auditLog      []AuditEntry
	maxAuditSize  int
	auditCallback func(entry AuditEntry)
}

// NewManager creates a permission manager pre-loaded with the standard
// chat room permission set.
func NewManager() *Manager {
	m := &Manager{
		permissions:  make(map[string]*Permission),
		groups:       make(map[string]*PermissionGroup),
		grants:       make(map[string]map[string]*PermissionGrant),
		auditLog:     make([]AuditEntry, 0, 1000),
		maxAuditSize: 10000,
	}
	m.registerStandardPermissions()
	return m
}

func (m *Manager) registerStandardPermissions() {
	m.RegisterGroup(GroupRoomContent)
	m.RegisterGroup(GroupRoomMembership)
	m.RegisterGroup(GroupRoomAdmin)

	register := func(name, group, description string, level ProtectionLevel) {
		m.RegisterPermission(&Permission{Name: name, Group: group, Description: description, ProtectionLevel: level})
	}

	register(PermissionSendMessage, GroupRoomContent.Name, "Post a message", ProtectionNormal)
	register(PermissionEditOwnMessage, GroupRoomContent.Name, "Edit a message you authored", ProtectionNormal)
	register(PermissionDeleteOwnMessage, GroupRoomContent.Name, "Delete a message you authored", ProtectionNormal)
	register(PermissionReactMessage, GroupRoomContent.Name, "React to a message", ProtectionNormal)
	register(PermissionDeleteMessage, GroupRoomContent.Name, "Delete another member's message", ProtectionDangerous)
	register(PermissionPinMessage, GroupRoomContent.Name, "Pin or unpin a message", ProtectionDangerous)

	register(PermissionInviteMember, GroupRoomMembership.Name, "Invite a new member", ProtectionNormal)
	register(PermissionRemoveMember, GroupRoomMembership.Name, "Remove a member", ProtectionDangerous)
	register(PermissionMuteMember, GroupRoomMembership.Name, "Mute a member's notifications for the room", ProtectionDangerous)
	register(PermissionManageMembers, GroupRoomMembership.Name, "Change member roles below owner", ProtectionDangerous)

	register(PermissionUpdateRoom, GroupRoomAdmin.Name, "Update room name or description", ProtectionDangerous)
	register(PermissionDeleteRoom, GroupRoomAdmin.Name, "Delete the room", ProtectionSignature)
	register(PermissionTransferOwnership, GroupRoomAdmin.Name, "Transfer room ownership", ProtectionSignature)
}

// RegisterPermission registers or replaces a permission definition.
func (m *Manager) RegisterPermission(perm *Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions[perm.Name] = perm
}

// RegisterGroup registers a permission group.
func (m *Manager) RegisterGroup(group *PermissionGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group.Name] = group
}

// GetPermission returns a permission definition by name.
func (m *Manager) GetPermission(name string) *Permission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.permissions[name]
}

// GetGroup returns a permission group by name.
func (m *Manager) GetGroup(name string) *PermissionGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groups[name]
}

func grantKey(roomID, memberID string) string {
	return roomID + ":" + memberID
}

// GrantPermission grants a member an explicit permission override within a room.
func (m *Manager) GrantPermission(ctx context.Context, roomID, memberID, permission, grantedBy string) error {
	return m.GrantPermissionWithExpiry(ctx, roomID, memberID, permission, grantedBy, time.Time{})
}

// GrantPermissionWithExpiry grants a permission override that lapses at expiresAt.
func (m *Manager) GrantPermissionWithExpiry(ctx context.Context, roomID, memberID, permission, grantedBy string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.permissions[permission]; !ok {
		return fmt.Errorf("unknown permission: %s", permission)
	}

	key := grantKey(roomID, memberID)
	if m.grants[key] == nil {
		m.grants[key] = make(map[string]*PermissionGrant)
	}
	m.grants[key][permission] = &PermissionGrant{
		Permission: permission,
		GrantedAt:  time.Now(),
		GrantedBy:  grantedBy,
		ExpiresAt:  expiresAt,
	}

	m.audit(AuditEntry{
		Timestamp:  time.Now(),
		Operation:  "grant",
		RoomID:     roomID,
		MemberID:   memberID,
		Permission: permission,
		Result:     PermissionGranted,
		Details:    map[string]any{"granted_by": grantedBy},
	})
	return nil
}

// RevokePermission revokes a previously granted override.
func (m *Manager) RevokePermission(ctx context.Context, roomID, memberID, permission, revokedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := grantKey(roomID, memberID)
	if m.grants[key] != nil {
		delete(m.grants[key], permission)
	}

	m.audit(AuditEntry{
		Timestamp:  time.Now(),
		Operation:  "revoke",
		RoomID:     roomID,
		MemberID:   memberID,
		Permission: permission,
		Result:     PermissionDenied,
		Details:    map[string]any{"revoked_by": revokedBy},
	})
	return nil
}

// CheckPermission is the single choke point every chat operation calls
// before mutating state. A member's role satisfies the permission's
// protection level, or an explicit override grants it regardless of role.
func (m *Manager) CheckPermission(ctx context.Context, roomID, memberID string, role RoomRole, permission string) PermissionResult {
	m.mu.RLock()
	perm, known := m.permissions[permission]
	var override *PermissionGrant
	if grants, ok := m.grants[grantKey(roomID, memberID)]; ok {
		override = grants[permission]
	}
	m.mu.RUnlock()

	result := PermissionDenied
	switch {
	case override != nil && !override.IsExpired():
		result = PermissionGranted
	case known && role.AtLeast(perm.ProtectionLevel.MinimumRole()):
		result = PermissionGranted
	case !known:
		result = PermissionDenied
	}

	go m.auditAsync(AuditEntry{
		Timestamp:  time.Now(),
		Operation:  "check",
		RoomID:     roomID,
		MemberID:   memberID,
		Permission: permission,
		Result:     result,
		Details:    map[string]any{"role": role.String()},
	})

	return result
}

// GetMemberGrants returns all active overrides for a member in a room.
func (m *Manager) GetMemberGrants(roomID, memberID string) []*PermissionGrant {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*PermissionGrant
	if grants, ok := m.grants[grantKey(roomID, memberID)]; ok {
		for _, grant := range grants {
			if !grant.IsExpired() {
				result = append(result, grant)
			}
		}
	}
	return result
}

// GetAllPermissions returns all registered permission definitions.
func (m *Manager) GetAllPermissions() []*Permission {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Permission, 0, len(m.permissions))
	for _, perm := range m.permissions {
		result = append(result, perm)
	}
	return result
}

// PermissionsForGroup returns the permissions belonging to a group, sorted by name.
func (m *Manager) PermissionsForGroup(group string) []*Permission {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Permission
	for _, perm := range m.permissions {
		if perm.Group == group {
			result = append(result, perm)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// GetAuditLog returns the most recent limit audit entries (0 for all).
func (m *Manager) GetAuditLog(limit int) []AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.auditLog) {
		limit = len(m.auditLog)
	}

	start := len(m.auditLog) - limit
	if start < 0 {
		start = 0
	}

	result := make([]AuditEntry, limit)
	copy(result, m.auditLog[start:])
	return result
}

// SetAuditCallback sets a callback invoked for every audit entry, used to
// bridge into the structured logger's LogSecurityEvent on denial.
func (m *Manager) SetAuditCallback(callback func(entry AuditEntry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditCallback = callback
}

func (m *Manager) audit(entry AuditEntry) {
	if len(m.auditLog) >= m.maxAuditSize {
		m.auditLog = m.auditLog[m.maxAuditSize/2:]
	}
	m.auditLog = append(m.auditLog, entry)

	if m.auditCallback != nil {
		go m.auditCallback(entry)
	}
}

func (m *Manager) auditAsync(entry AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit(entry)
}

// RequiredRoleFor returns the minimum room role required for a permission,
// or RoleOwner with ok=false if the permission is unknown (fail closed).
func (m *Manager) RequiredRoleFor(permission string) (role RoomRole, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	perm, known := m.permissions[permission]
	if !known {
		return RoleOwner, false
	}
	return perm.ProtectionLevel.MinimumRole(), true
}

// ParseRoomRole parses a role string (case-insensitive) into a RoomRole.
func ParseRoomRole(raw string) (RoomRole, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "guest":
		return RoleGuest, true
	case "member":
		return RoleMember, true
	case "admin":
		return RoleAdmin, true
	case "owner":
		return RoleOwner, true
	default:
		return RoleGuest, false
	}
}
