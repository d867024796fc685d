package service

import (
	"errors"

	"messenger/internal/auth"
	"messenger/internal/config"
	"messenger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserService 封装用户、会话凭证相关的业务逻辑。
type UserService struct {
	db  *gorm.DB
	cfg config.Config
}

func NewUserService(db *gorm.DB, cfg config.Config) *UserService {
	return &UserService{db: db, cfg: cfg}
}

// UserDTO 是对外输出的用户数据，不含任何凭证字段。
type UserDTO struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func toUserDTO(u models.User) UserDTO {
	return UserDTO{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

// Register 注册新用户，用户名和邮箱都必须唯一。
func (s *UserService) Register(username, email, password string) (*UserDTO, error) {
	var count int64
	if err := s.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{Username: username, Email: email, PasswordHash: hash, Role: models.RoleUser}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	dto := toUserDTO(user)
	return &dto, nil
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         models.User `json:"-"`
}

// Login 校验用户名（或邮箱）和密码，签发 token 对并保存 refresh 凭证哈希。
func (s *UserService) Login(identifier, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.Where("username = ? OR email = ?", identifier, identifier).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	at, rt, err := s.issueTokenPair(user)
	if err != nil {
		return nil, err
	}
	if err := auth.SaveRefreshTokenHash(s.db, user.ID, rt); err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: at, RefreshToken: rt, User: user}, nil
}

// RefreshResult 刷新 token 后返回的新 token 对。
type RefreshResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshTokens 验证旧 refresh token 并签发新 token 对（旋转刷新）。
// 每个 refresh token 只能用一次：成功后哈希被新值覆盖，旧 token 立即失效。
// 事务内对用户行加锁，并发旋转会串行化，后写者胜出。
func (s *UserService) RefreshTokens(oldRT string) (*RefreshResult, error) {
	claims, err := auth.ParseRefreshToken(oldRT, s.cfg.RefreshTokenSecret)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	var result RefreshResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, claims.UserID).Error; err != nil {
			return ErrInvalidRefreshToken
		}
		if !auth.VerifyRefreshHash(user.RefreshTokenHash, oldRT) {
			return ErrInvalidRefreshToken
		}
		at, rt, err := s.issueTokenPair(user)
		if err != nil {
			return err
		}
		if err := auth.SaveRefreshTokenHash(tx, user.ID, rt); err != nil {
			return err
		}
		result.AccessToken = at
		result.RefreshToken = rt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout 清空用户的 refresh 凭证，之后该用户已发出的 refresh token 全部失效。
func (s *UserService) Logout(userID uint) error {
	return auth.ClearRefreshToken(s.db, userID)
}

// Profile 返回用户自己的资料。
func (s *UserService) Profile(userID uint) (*UserDTO, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	dto := toUserDTO(user)
	return &dto, nil
}

// UpdateProfile 更新用户名或邮箱，空字符串表示不修改。
func (s *UserService) UpdateProfile(userID uint, username, email string) (*UserDTO, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	updates := map[string]interface{}{}
	if username != "" && username != user.Username {
		var count int64
		if err := s.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrUsernameTaken
		}
		updates["username"] = username
	}
	if email != "" && email != user.Email {
		var count int64
		if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrEmailTaken
		}
		updates["email"] = email
	}
	if len(updates) > 0 {
		if err := s.db.Model(&user).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	dto := toUserDTO(user)
	return &dto, nil
}

// ListOthers 返回除指定用户外的所有用户，供发起会话时搜索联系人。
func (s *UserService) ListOthers(userID uint) ([]UserDTO, error) {
	var users []models.User
	if err := s.db.Where("id <> ?", userID).Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	out := make([]UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	return out, nil
}

// ListAll 返回全部用户，仅限管理员路由调用。
func (s *UserService) ListAll() ([]UserDTO, error) {
	var users []models.User
	if err := s.db.Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	out := make([]UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	return out, nil
}

// issueTokenPair 为用户签发 access/refresh token 对，两者使用不同密钥与有效期。
func (s *UserService) issueTokenPair(user models.User) (string, string, error) {
	at, err := auth.GenerateAccessToken(user.ID, user.Username, []string{user.Role}, s.cfg.AccessTokenSecret, s.cfg.AccessTokenTTLMinutes)
	if err != nil {
		return "", "", err
	}
	rt, err := auth.GenerateRefreshToken(user.ID, user.Username, s.cfg.RefreshTokenSecret, s.cfg.RefreshTokenTTLDays)
	if err != nil {
		return "", "", err
	}
	return at, rt, nil
}
