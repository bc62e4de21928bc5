package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"webmail/auth"
	"webmail/database"
)

// MaxProfilePictureSize is the largest accepted profile picture.
const MaxProfilePictureSize = 5 << 20

var (
	pageSizes   = []int{10, 20, 25, 50, 100}
	undoDelays  = []int{5, 10, 20, 30}
	labelValues = []string{"show", "hide"}
)

// AccountService handles registration, login and per-user settings.
type AccountService struct {
	store     Store
	tokens    *auth.Manager
	domain    string
	uploadDir string
	logger    *slog.Logger
}

// NewAccountService only registers addresses ending in @emailDomain and
// stores profile pictures under uploadDir.
func NewAccountService(store Store, tokens *auth.Manager, emailDomain, uploadDir string, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		store:     store,
		tokens:    tokens,
		domain:    strings.TrimPrefix(strings.ToLower(emailDomain), "@"),
		uploadDir: uploadDir,
		logger:    logger,
	}
}

type RegisterRequest struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*database.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if strings.TrimSpace(req.Name) == "" || email == "" || req.Password == "" || req.ConfirmPassword == "" {
		return nil, validationError("Name, Email, Password, and Confirm Password are required")
	}
	if req.Password != req.ConfirmPassword {
		return nil, validationError("Password and Confirm Password do not match")
	}
	if !strings.HasSuffix(email, "@"+s.domain) || email == "@"+s.domain {
		return nil, validationError(fmt.Sprintf("Email must end with @%s", s.domain))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return nil, validationError("Invalid email address")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, internalError("Server error during registration.", err)
	}
	user, err := s.store.CreateUser(ctx, email, hash, strings.TrimSpace(req.Name))
	if errors.Is(err, database.ErrDuplicate) {
		return nil, newError(KindConflict, "Email already registered", err)
	}
	if err != nil {
		return nil, internalError("Server error during registration.", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// Login checks the credentials and issues an access token. Unknown email and
// wrong password fail identically.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, *database.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", nil, validationError("Email and password are required")
	}

	user, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, database.ErrNotFound) {
		return "", nil, newError(KindAuth, "Invalid credentials", err)
	}
	if err != nil {
		return "", nil, internalError("Server error during login.", err)
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return "", nil, newError(KindAuth, "Invalid credentials", err)
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return "", nil, internalError("Server error during login.", err)
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return token, user, nil
}

func (s *AccountService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return validationError("Old password and new password are required")
	}
	if oldPassword == newPassword {
		return validationError("New password must be different from the old password")
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return storeError(err, "User not found")
	}
	if err := auth.CheckPassword(user.PasswordHash, oldPassword); err != nil {
		return newError(KindAuth, "Old password is incorrect", err)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return internalError("Failed to change password", err)
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		return storeError(err, "User not found")
	}
	s.logger.Info("password changed", "user_id", userID)
	return nil
}

// Settings returns the user's settings together with their signatures.
func (s *AccountService) Settings(ctx context.Context, userID int64) (*database.Settings, []database.Signature, error) {
	st, err := s.store.GetSettings(ctx, userID)
	if err != nil {
		return nil, nil, storeError(err, "Settings not found")
	}
	sigs, err := s.store.ListSignatures(ctx, userID)
	if err != nil {
		return nil, nil, internalError("Failed to fetch signatures", err)
	}
	return st, sigs, nil
}

// UpdateSettings validates p and applies it. Default signatures must belong
// to the user.
func (s *AccountService) UpdateSettings(ctx context.Context, userID int64, p database.SettingsPatch) (*database.Settings, error) {
	if p.MaxPageSize != nil && !slices.Contains(pageSizes, *p.MaxPageSize) {
		return nil, validationError(fmt.Sprintf("max_page_size must be one of %v", pageSizes))
	}
	if p.UndoSendDelay != nil && !slices.Contains(undoDelays, *p.UndoSendDelay) {
		return nil, validationError(fmt.Sprintf("undo_send_delay must be one of %v", undoDelays))
	}
	for col, v := range p.Labels {
		if !slices.Contains(database.LabelColumns, col) {
			return nil, validationError(fmt.Sprintf("Unknown setting %q", col))
		}
		if !slices.Contains(labelValues, v) {
			return nil, validationError(fmt.Sprintf("%s must be show or hide", col))
		}
	}

	if (p.DefaultSignatureNew != nil && p.DefaultSignatureNew.Valid) ||
		(p.DefaultSignatureReply != nil && p.DefaultSignatureReply.Valid) {
		sigs, err := s.store.ListSignatures(ctx, userID)
		if err != nil {
			return nil, internalError("Failed to update settings", err)
		}
		owned := func(id int64) bool {
			return slices.ContainsFunc(sigs, func(sig database.Signature) bool { return sig.ID == id })
		}
		if p.DefaultSignatureNew != nil && p.DefaultSignatureNew.Valid && !owned(p.DefaultSignatureNew.Int64) {
			return nil, notFoundError("Signature not found")
		}
		if p.DefaultSignatureReply != nil && p.DefaultSignatureReply.Valid && !owned(p.DefaultSignatureReply.Int64) {
			return nil, notFoundError("Signature not found")
		}
	}

	st, err := s.store.UpdateSettings(ctx, userID, p)
	if err != nil {
		return nil, storeError(err, "Settings not found")
	}
	s.logger.Info("settings updated", "user_id", userID)
	return st, nil
}

// pictureExts maps the sniffed image types accepted as profile pictures to
// the extension they are stored under.
var pictureExts = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// SaveProfilePicture stores an uploaded image under a random name and points
// the user's settings at it. It returns the public URL path. The stored
// extension follows the sniffed content, never filename, since /uploads/ is
// served with a type derived from it.
func (s *AccountService) SaveProfilePicture(ctx context.Context, userID int64, filename, contentType string, r io.Reader) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", validationError("Only image files are allowed.")
	}
	head := make([]byte, 512)
	hn, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", internalError("Failed to store profile picture", err)
	}
	head = head[:hn]
	ext, ok := pictureExts[http.DetectContentType(head)]
	if !ok {
		return "", validationError("Only image files are allowed.")
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", internalError("Failed to store profile picture", err)
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.uploadDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", internalError("Failed to store profile picture", err)
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	n, err := io.Copy(f, io.LimitReader(body, MaxProfilePictureSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxProfilePictureSize {
		err = errTooLarge
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, errTooLarge) {
			return "", validationError("Profile picture must be 5 MB or smaller.")
		}
		return "", internalError("Failed to store profile picture", err)
	}

	url := "/uploads/" + name
	if _, err := s.store.UpdateSettings(ctx, userID, database.SettingsPatch{ProfilePictureURL: &url}); err != nil {
		os.Remove(path)
		return "", storeError(err, "Settings not found")
	}
	s.logger.Info("profile picture uploaded", "user_id", userID, "file", name, "original", filename, "bytes", n)
	return url, nil
}

var errTooLarge = errors.New("file too large")

func (s *AccountService) ListSignatures(ctx context.Context, userID int64) ([]database.Signature, error) {
	sigs, err := s.store.ListSignatures(ctx, userID)
	if err != nil {
		return nil, internalError("Failed to fetch signatures", err)
	}
	return sigs, nil
}

func (s *AccountService) CreateSignature(ctx context.Context, userID int64, name, content string) (*database.Signature, error) {
	if strings.TrimSpace(name) == "" {
		return nil, validationError("Signature name is required")
	}
	sig, err := s.store.CreateSignature(ctx, &database.Signature{UserID: userID, Name: strings.TrimSpace(name), Content: content})
	if err != nil {
		return nil, internalError("Failed to create signature", err)
	}
	return sig, nil
}

func (s *AccountService) UpdateSignature(ctx context.Context, userID, id int64, name, content string) (*database.Signature, error) {
	if strings.TrimSpace(name) == "" {
		return nil, validationError("Signature name is required")
	}
	sig, err := s.store.UpdateSignature(ctx, &database.Signature{ID: id, UserID: userID, Name: strings.TrimSpace(name), Content: content})
	if err != nil {
		return nil, storeError(err, "Signature not found")
	}
	return sig, nil
}

// DeleteSignature removes a signature and clears any default pointing at it.
func (s *AccountService) DeleteSignature(ctx context.Context, userID, id int64) error {
	if err := s.store.DeleteSignature(ctx, userID, id); err != nil {
		return storeError(err, "Signature not found")
	}
	return nil
}
