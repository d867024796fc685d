package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID               uint   `gorm:"primaryKey"`
	Username         string `gorm:"uniqueIndex;size:64;not null"`
	Email            string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash     string `gorm:"not null"`
	RefreshTokenHash string `gorm:"size:128"`
	Role             string `gorm:"size:16;not null;default:user"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Conversation struct {
	ID        uint    `gorm:"primaryKey"`
	IsGroup   bool    `gorm:"not null"`
	Name      *string `gorm:"size:128"`
	AdminID   *uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserInConversation 是会话成员关系，联合主键 (user_id, conversation_id)。
type UserInConversation struct {
	UserID         uint `gorm:"primaryKey;autoIncrement:false"`
	ConversationID uint `gorm:"primaryKey;autoIncrement:false;index"`
	UnreadCount    int  `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

type Message struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID uint   `gorm:"index:idx_msg_conversation;not null"`
	SenderID       uint   `gorm:"index;not null"`
	Content        string `gorm:"type:text;not null"`
	CreatedAt      time.Time
}
