// internal/chat/group.go
// Group lifecycle and the membership state machine. The standing invariants:
// the creator starts as admin, and an active group with members always has at
// least one admin.

package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/apperrors"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/notifications"
)

// CreateGroup creates a group with the creator as first admin. Unknown member
// IDs are dropped silently; the creator is deduplicated out of the member
// list before the admin invariant is applied.
func (s *chatService) CreateGroup(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*ChatGroup, error) {
	candidateIDs := make([]int64, 0, len(req.MemberIDs))
	seen := map[int64]struct{}{creatorID: {}}
	for _, id := range req.MemberIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		candidateIDs = append(candidateIDs, id)
	}

	memberIDs, err := s.repo.ResolveUserIDs(ctx, candidateIDs)
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	settings := DefaultGroupSettings()
	req.Settings.Apply(&settings)

	now := time.Now()
	group := &ChatGroup{
		Name:        req.Name,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
		CreatorID:   creatorID,
		Settings:    settings,
		IsActive:    true,
	}
	for _, id := range memberIDs {
		group.Members = append(group.Members, &GroupMember{UserID: id, Role: RoleMember, JoinedAt: now})
	}
	ensureCreatorAdmin(group)

	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return nil, apperrors.Storage(err)
	}

	actor := s.displayName(ctx, creatorID)
	for _, m := range group.Members {
		if m.UserID == creatorID {
			continue
		}
		s.notifyGroupMember(ctx, notifications.TypeAddedToGroup, group, creatorID, m.UserID,
			fmt.Sprintf("%s added you to %s", actor, group.Name))
	}

	return group, nil
}

// GetGroup returns the group with members loaded. Members only.
func (s *chatService) GetGroup(ctx context.Context, groupID, userID int64) (*ChatGroup, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Member(userID) == nil {
		return nil, apperrors.Authorization("You are not a member of this group")
	}
	return group, nil
}

// UpdateGroup patches metadata and settings. Settings merge field by field
// into the stored value; omitted fields keep their current value.
func (s *chatService) UpdateGroup(ctx context.Context, groupID, userID int64, req *UpdateGroupRequest) (*ChatGroup, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	member := group.Member(userID)
	if member == nil {
		return nil, apperrors.Authorization("You are not a member of this group")
	}
	if member.Role != RoleAdmin {
		return nil, apperrors.Authorization("Only admins can update the group")
	}

	var settings *GroupSettings
	if req.Settings != nil {
		merged := group.Settings
		req.Settings.Apply(&merged)
		settings = &merged
	}

	if err := s.repo.UpdateGroup(ctx, groupID, req.Name, req.Description, req.AvatarURL, settings); err != nil {
		return nil, apperrors.Storage(err)
	}

	if req.Name != nil && *req.Name != group.Name {
		actor := s.displayName(ctx, userID)
		for _, m := range group.Members {
			if m.UserID == userID {
				continue
			}
			s.notifyGroupMember(ctx, notifications.TypeGroupUpdated, group, userID, m.UserID,
				fmt.Sprintf("%s renamed the group to %s", actor, *req.Name))
		}
	}

	return s.loadGroup(ctx, groupID)
}

// DeleteGroup soft-deletes. Admins and the creator may delete; virtual groups
// carry no admin roster and any member may dissolve them.
func (s *chatService) DeleteGroup(ctx context.Context, groupID, userID int64) error {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	member := group.Member(userID)
	if member == nil {
		return apperrors.Authorization("You are not a member of this group")
	}
	if member.Role != RoleAdmin && group.CreatorID != userID && !group.IsVirtual {
		return apperrors.Authorization("Only admins can delete the group")
	}

	if err := s.repo.DeactivateGroup(ctx, groupID); err != nil {
		return apperrors.Storage(err)
	}

	actor := s.displayName(ctx, userID)
	for _, m := range group.Members {
		if m.UserID == userID {
			continue
		}
		s.notifyGroupMember(ctx, notifications.TypeGroupDeleted, group, userID, m.UserID,
			fmt.Sprintf("%s deleted the group %s", actor, group.Name))
	}
	return nil
}

// AddMembers adds users to the group, honoring the addMembers permission.
// Unknown IDs and existing members are dropped silently; the returned slice
// holds the IDs actually added.
func (s *chatService) AddMembers(ctx context.Context, groupID, actorID int64, memberIDs []int64) ([]int64, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	actor := group.Member(actorID)
	if actor == nil {
		return nil, apperrors.Authorization("You are not a member of this group")
	}
	if group.Settings.AddMembers == PermAdminsOnly && actor.Role != RoleAdmin {
		return nil, apperrors.Authorization("Only admins can add members to this group")
	}

	resolved, err := s.repo.ResolveUserIDs(ctx, memberIDs)
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	now := time.Now()
	var newMembers []*GroupMember
	for _, id := range resolved {
		if group.Member(id) != nil {
			continue
		}
		newMembers = append(newMembers, &GroupMember{GroupID: groupID, UserID: id, Role: RoleMember, JoinedAt: now})
	}
	if len(newMembers) == 0 {
		return nil, nil
	}

	added, err := s.repo.AddGroupMembers(ctx, groupID, newMembers)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if len(added) == 0 {
		return nil, nil
	}

	actorName := s.displayName(ctx, actorID)
	for _, id := range added {
		s.notifyGroupMember(ctx, notifications.TypeAddedToGroup, group, actorID, id,
			fmt.Sprintf("%s added you to %s", actorName, group.Name))
	}
	for _, m := range group.Members {
		if m.UserID == actorID {
			continue
		}
		s.notifyGroupMember(ctx, notifications.TypeMembersAdded, group, actorID, m.UserID,
			fmt.Sprintf("%s added %d new member(s) to %s", actorName, len(added), group.Name))
	}

	return added, nil
}

// RemoveMember removes the target from the group. Removing yourself is always
// allowed and follows leave semantics. Removing another admin is forbidden;
// they must be demoted first.
func (s *chatService) RemoveMember(ctx context.Context, groupID, actorID, targetID int64) error {
	if actorID == targetID {
		return s.LeaveGroup(ctx, groupID, actorID)
	}

	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	actor := group.Member(actorID)
	if actor == nil {
		return apperrors.Authorization("You are not a member of this group")
	}
	if group.Settings.RemoveMembers == PermAdminsOnly && actor.Role != RoleAdmin {
		return apperrors.Authorization("Only admins can remove members from this group")
	}
	target := group.Member(targetID)
	if target == nil {
		return apperrors.NotFound("Member not found")
	}
	if target.Role == RoleAdmin {
		return apperrors.Authorization("Admins cannot be removed; demote them first")
	}

	removed, err := s.repo.RemoveGroupMember(ctx, groupID, targetID)
	if err != nil {
		return apperrors.Storage(err)
	}
	if !removed {
		return apperrors.NotFound("Member not found")
	}

	if _, err := s.repo.DeactivateGroupIfEmpty(ctx, groupID); err != nil {
		return apperrors.Storage(err)
	}

	actorName := s.displayName(ctx, actorID)
	s.notifyGroupMember(ctx, notifications.TypeRemovedFromGroup, group, actorID, targetID,
		fmt.Sprintf("%s removed you from %s", actorName, group.Name))
	targetName := s.displayName(ctx, targetID)
	for _, m := range group.Members {
		if m.UserID == actorID || m.UserID == targetID {
			continue
		}
		s.notifyGroupMember(ctx, notifications.TypeMemberLeft, group, actorID, m.UserID,
			fmt.Sprintf("%s was removed from %s", targetName, group.Name))
	}
	return nil
}

// LeaveGroup removes the caller. If the caller is the sole admin and members
// remain, the longest-standing member is promoted before the removal so the
// group is never observably adminless, even across a crash between the two
// statements.
func (s *chatService) LeaveGroup(ctx context.Context, groupID, userID int64) error {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	leaver := group.Member(userID)
	if leaver == nil {
		return apperrors.Authorization("You are not a member of this group")
	}

	var promotedID int64
	if leaver.Role == RoleAdmin && group.AdminCount() == 1 && len(group.Members) > 1 {
		successor := earliestOtherMember(group, userID)
		if err := s.repo.UpdateMemberRole(ctx, groupID, successor.UserID, RoleAdmin); err != nil {
			return apperrors.Storage(err)
		}
		promotedID = successor.UserID
	}

	removed, err := s.repo.RemoveGroupMember(ctx, groupID, userID)
	if err != nil {
		return apperrors.Storage(err)
	}
	if !removed {
		return apperrors.NotFound("Member not found")
	}

	// A group already adminless from a partial earlier leave is repaired here
	if promotedID == 0 {
		promotedID, err = s.repo.PromoteEarliestMemberIfNoAdmin(ctx, groupID)
		if err != nil {
			return apperrors.Storage(err)
		}
	}

	deactivated, err := s.repo.DeactivateGroupIfEmpty(ctx, groupID)
	if err != nil {
		return apperrors.Storage(err)
	}
	if deactivated {
		return nil
	}

	if promotedID != 0 {
		s.notifyGroupMember(ctx, notifications.TypePromotedAdmin, group, userID, promotedID,
			fmt.Sprintf("You are now an admin of %s", group.Name))
	}

	name := s.displayName(ctx, userID)
	for _, m := range group.Members {
		if m.UserID == userID {
			continue
		}
		s.notifyGroupMember(ctx, notifications.TypeMemberLeft, group, userID, m.UserID,
			fmt.Sprintf("%s left %s", name, group.Name))
	}
	return nil
}

// ChangeMemberRole promotes or demotes a member. Self-changes are rejected,
// and the last admin can never be demoted.
func (s *chatService) ChangeMemberRole(ctx context.Context, groupID, actorID, targetID int64, role GroupRole) error {
	if actorID == targetID {
		return apperrors.Validation("You cannot change your own role")
	}

	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	actor := group.Member(actorID)
	if actor == nil {
		return apperrors.Authorization("You are not a member of this group")
	}
	if actor.Role != RoleAdmin {
		return apperrors.Authorization("Only admins can change member roles")
	}
	target := group.Member(targetID)
	if target == nil {
		return apperrors.NotFound("Member not found")
	}
	if target.Role == role {
		return nil
	}
	if target.Role == RoleAdmin && role == RoleMember && group.AdminCount() == 1 {
		return apperrors.Conflict("Cannot demote the only admin")
	}

	if err := s.repo.UpdateMemberRole(ctx, groupID, targetID, role); err != nil {
		return apperrors.Storage(err)
	}

	if role == RoleAdmin {
		s.notifyGroupMember(ctx, notifications.TypePromotedAdmin, group, actorID, targetID,
			fmt.Sprintf("You are now an admin of %s", group.Name))
	} else {
		s.notifyGroupMember(ctx, notifications.TypeRoleChanged, group, actorID, targetID,
			fmt.Sprintf("You are now a member of %s", group.Name))
	}
	return nil
}

// notifyGroupMember records a durable membership notification. Best-effort:
// failures are logged, never surfaced to the caller.
func (s *chatService) notifyGroupMember(ctx context.Context, typ notifications.Type, group *ChatGroup, actorID, recipientID int64, text string) {
	if s.notifs == nil {
		return
	}
	n := &notifications.Notification{
		RecipientID: recipientID,
		Type:        typ,
		SenderID:    int64Ptr(actorID),
		ChatID:      int64Ptr(group.ID),
		ChatKind:    strPtr(string(TypeGroup)),
		ChatName:    strPtr(group.Name),
		Text:        text,
	}
	if err := s.notifs.Create(ctx, n); err != nil {
		log.Printf("Failed to create group notification for user %d: %v", recipientID, err)
	}
}

// earliestOtherMember returns the longest-tenured member other than
// excludeID. Ties break on the lower user ID, matching the store's own
// promotion order.
func earliestOtherMember(group *ChatGroup, excludeID int64) *GroupMember {
	var best *GroupMember
	for _, m := range group.Members {
		if m.UserID == excludeID {
			continue
		}
		if best == nil || m.JoinedAt.Before(best.JoinedAt) ||
			(m.JoinedAt.Equal(best.JoinedAt) && m.UserID < best.UserID) {
			best = m
		}
	}
	return best
}

func (s *chatService) displayName(ctx context.Context, userID int64) string {
	info, err := s.repo.GetUserInfo(ctx, userID)
	if err != nil || info == nil {
		return "Someone"
	}
	if info.DisplayName != "" {
		return info.DisplayName
	}
	return info.Username
}
