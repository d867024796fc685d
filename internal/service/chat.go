package service

import (
	"errors"
	"time"

	"messenger/internal/models"

	"gorm.io/gorm"
)

// ChatService 封装会话、成员关系与消息相关的业务逻辑。
type ChatService struct {
	db *gorm.DB
}

func NewChatService(db *gorm.DB) *ChatService {
	return &ChatService{db: db}
}

// MessageDTO 是对外输出的消息数据。
type MessageDTO struct {
	ID             uint      `json:"id"`
	ConversationID uint      `json:"conversation_id"`
	SenderID       uint      `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ParticipantDTO 是会话成员的展示数据。
type ParticipantDTO struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

// ConversationDTO 是会话列表视图的数据：成员、最近一条消息、当前用户的未读数。
type ConversationDTO struct {
	ID           uint             `json:"id"`
	IsGroup      bool             `json:"is_group"`
	Name         *string          `json:"name"`
	AdminID      *uint            `json:"admin_id"`
	Participants []ParticipantDTO `json:"participants"`
	LastMessage  *MessageDTO      `json:"last_message"`
	UnreadCount  int              `json:"unread_count"`
	// Online 由 handler 层从房间统计注入，service 层不感知连接状态。
	Online int `json:"online"`
}

// IsParticipant 判断用户是否为会话成员。纯读操作，所有改动类操作前都必须先过这一关。
func (s *ChatService) IsParticipant(userID, conversationID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.UserInConversation{}).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateConversation 创建会话。两人非群聊会先查找既有会话，避免同一对用户出现重复私聊；
// 群聊为去重后的成员集合建立成员行，创建者成为群管理员。
func (s *ChatService) CreateConversation(creatorID uint, participantIDs []uint, isGroup bool, name string) (*ConversationDTO, error) {
	ids := dedupIDs(append([]uint{creatorID}, participantIDs...))
	if !isGroup && len(ids) != 2 {
		return nil, ErrInvalidParticipants
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
		return nil, err
	}
	if int(count) != len(ids) {
		return nil, ErrUserNotFound
	}

	var conv models.Conversation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if !isGroup {
			// 私聊唯一性：无论参数顺序，同一对用户始终命中同一条会话。
			sub := tx.Model(&models.UserInConversation{}).
				Select("conversation_id").
				Where("user_id IN ?", ids).
				Group("conversation_id").
				Having("COUNT(DISTINCT user_id) = 2")
			err := tx.Where("is_group = ? AND id IN (?)", false, sub).First(&conv).Error
			if err == nil {
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		conv = models.Conversation{IsGroup: isGroup}
		if isGroup {
			if name != "" {
				n := name
				conv.Name = &n
			}
			admin := creatorID
			conv.AdminID = &admin
		}
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		for _, id := range ids {
			p := models.UserInConversation{UserID: id, ConversationID: conv.ID}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadConversation(conv.ID, creatorID)
}

// ListForUser 返回用户参与的全部会话，附带成员、最近一条消息和该用户的未读数。
func (s *ChatService) ListForUser(userID uint) ([]ConversationDTO, error) {
	var memberships []models.UserInConversation
	if err := s.db.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return nil, err
	}
	out := make([]ConversationDTO, 0, len(memberships))
	convIDs := make([]uint, 0, len(memberships))
	for _, m := range memberships {
		convIDs = append(convIDs, m.ConversationID)
	}
	var convs []models.Conversation
	if len(convIDs) > 0 {
		if err := s.db.Where("id IN ?", convIDs).Order("id desc").Find(&convs).Error; err != nil {
			return nil, err
		}
	}
	for _, conv := range convs {
		dto, err := s.loadConversation(conv.ID, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, *dto)
	}
	return out, nil
}

// ListMessages 返回会话的完整消息历史，按时间升序。调用方必须先做成员校验。
func (s *ChatService) ListMessages(conversationID uint) ([]MessageDTO, error) {
	var msgs []models.Message
	if err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at asc, id asc").Find(&msgs).Error; err != nil {
		return nil, err
	}
	usernames, err := s.resolveUsernames(msgs)
	if err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageDTO(m, usernames[m.SenderID]))
	}
	return out, nil
}

// AppendResult 是追加消息后返回给网关的数据，包含通知扇出所需的成员列表。
type AppendResult struct {
	Message          MessageDTO
	ConversationName *string
	IsGroup          bool
	ParticipantIDs   []uint
}

// AppendMessage 在一个事务里写入消息并为除发送者外的每个成员原子加一未读数。
// 消息行和未读计数要么一起提交，要么一起回滚。
func (s *ChatService) AppendMessage(senderID, conversationID uint, content string) (*AppendResult, error) {
	var result AppendResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.UserInConversation{}).
			Where("user_id = ? AND conversation_id = ?", senderID, conversationID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotParticipant
		}
		msg := models.Message{ConversationID: conversationID, SenderID: senderID, Content: content}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.UserInConversation{}).
			Where("conversation_id = ? AND user_id <> ?", conversationID, senderID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error; err != nil {
			return err
		}
		var conv models.Conversation
		if err := tx.First(&conv, conversationID).Error; err != nil {
			return err
		}
		var parts []models.UserInConversation
		if err := tx.Where("conversation_id = ?", conversationID).Find(&parts).Error; err != nil {
			return err
		}
		var sender models.User
		if err := tx.Select("id", "username").First(&sender, senderID).Error; err != nil {
			return err
		}
		result.Message = toMessageDTO(msg, sender.Username)
		result.ConversationName = conv.Name
		result.IsGroup = conv.IsGroup
		for _, p := range parts {
			result.ParticipantIDs = append(result.ParticipantIDs, p.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkSeen 将用户在会话里的未读数清零。重复调用是幂等的。
func (s *ChatService) MarkSeen(userID, conversationID uint) error {
	res := s.db.Model(&models.UserInConversation{}).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		UpdateColumn("unread_count", 0)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotParticipant
	}
	return nil
}

// loadConversation 组装单个会话的列表视图数据。
func (s *ChatService) loadConversation(conversationID, viewerID uint) (*ConversationDTO, error) {
	var conv models.Conversation
	if err := s.db.First(&conv, conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	var parts []models.UserInConversation
	if err := s.db.Where("conversation_id = ?", conversationID).Order("user_id").Find(&parts).Error; err != nil {
		return nil, err
	}
	userIDs := make([]uint, 0, len(parts))
	unread := 0
	for _, p := range parts {
		userIDs = append(userIDs, p.UserID)
		if p.UserID == viewerID {
			unread = p.UnreadCount
		}
	}
	usernames := make(map[uint]string, len(userIDs))
	if len(userIDs) > 0 {
		var users []models.User
		if err := s.db.Select("id", "username").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}
	dto := ConversationDTO{
		ID:          conv.ID,
		IsGroup:     conv.IsGroup,
		Name:        conv.Name,
		AdminID:     conv.AdminID,
		UnreadCount: unread,
	}
	for _, p := range parts {
		dto.Participants = append(dto.Participants, ParticipantDTO{UserID: p.UserID, Username: usernames[p.UserID]})
	}
	var last models.Message
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at desc, id desc").First(&last).Error
	if err == nil {
		m := toMessageDTO(last, usernames[last.SenderID])
		if m.SenderName == "" {
			var sender models.User
			if err := s.db.Select("id", "username").First(&sender, last.SenderID).Error; err == nil {
				m.SenderName = sender.Username
			}
		}
		dto.LastMessage = &m
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &dto, nil
}

// resolveUsernames 批量获取消息涉及的用户名。
func (s *ChatService) resolveUsernames(msgs []models.Message) (map[uint]string, error) {
	seen := make(map[uint]struct{}, len(msgs))
	userIDs := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		userIDs = append(userIDs, m.SenderID)
	}

	usernames := make(map[uint]string, len(userIDs))
	if len(userIDs) > 0 {
		var users []models.User
		if err := s.db.Select("id", "username").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}
	return usernames, nil
}

func toMessageDTO(m models.Message, senderName string) MessageDTO {
	return MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     senderName,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

func dedupIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
