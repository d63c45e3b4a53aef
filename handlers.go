package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"datacleanse/models"
	"datacleanse/pkg/lifecycle"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func setupRoutes(r *gin.Engine) {
	r.POST("/register", registerHandler)
	r.POST("/login", loginHandler)
	r.POST("/refresh", refreshHandler)
	r.POST("/revoke_refresh", revokeRefreshHandler)
	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.POST("/datasets", uploadDatasetHandler)
	authGroup.GET("/datasets", listDatasetsHandler)
	authGroup.GET("/datasets/:id", getDatasetHandler)
	authGroup.DELETE("/datasets/:id", deleteDatasetHandler)
	authGroup.POST("/datasets/:id/process", processDatasetHandler)
	authGroup.GET("/datasets/:id/records", listRecordsHandler)
	authGroup.POST("/datasets/:id/records/:index/review", submitReviewHandler)
	authGroup.GET("/datasets/:id/progress", progressHandler)
	authGroup.POST("/datasets/:id/complete", completeHandler)
	authGroup.GET("/datasets/:id/download", downloadDatasetHandler)
}

func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		tokenString := authHeader[7:]
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		username, _ := claims["username"].(string)
		role, _ := claims["role"].(string)
		c.Set("username", username)
		if role != "" {
			c.Set("role", role)
		}
		c.Next()
	}
}

func meHandler(c *gin.Context) {
	usernameVal, _ := c.Get("username")
	if usernameVal == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing username"})
		return
	}
	username := usernameVal.(string)
	c.JSON(http.StatusOK, gin.H{"username": username})
}

// getUserFromContext fetches the currently authenticated user using the username set by jwtAuthMiddleware
func getUserFromContext(c *gin.Context) (*models.User, bool) {
	unameVal, _ := c.Get("username")
	if unameVal == nil {
		return nil, false
	}
	uname := unameVal.(string)
	var user models.User
	if err := db.Where("username = ?", uname).First(&user).Error; err != nil {
		return nil, false
	}
	return &user, true
}

// failPipeline maps the pipeline error taxonomy onto HTTP codes. NotFound
// covers inaccessible datasets too, so callers cannot probe for existence.
func failPipeline(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
	case errors.Is(err, lifecycle.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "operation conflicts with dataset state"})
	case errors.Is(err, lifecycle.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func datasetJSON(ds *models.Dataset) gin.H {
	return gin.H{
		"datasetId":  ds.DatasetID,
		"status":     ds.Status,
		"filename":   ds.Filename,
		"size":       ds.Size,
		"storeRef":   ds.StoreRef,
		"uploadedAt": ds.UploadedAt.Format(time.RFC3339),
	}
}

func recordJSON(rec *models.Record) gin.H {
	out := gin.H{
		"index":    rec.RowIndex,
		"data":     rec.Data,
		"changes":  rec.Changes,
		"reviewed": rec.Reviewed,
	}
	if rec.Approved != nil {
		out["approved"] = *rec.Approved
	}
	if rec.Comments != "" {
		out["comments"] = rec.Comments
	}
	if rec.ReviewedAt != nil {
		out["reviewedAt"] = rec.ReviewedAt.Format(time.RFC3339)
	}
	return out
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return
}

// uploadDatasetHandler stores the uploaded file and creates the dataset in
// status uploaded. Processing is a separate, explicit request.
func uploadDatasetHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > 25*1024*1024 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 25MB)"})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer src.Close()

	// store under a collision-free name, keep the original for display
	ext := filepath.Ext(file.Filename)
	stored := strings.TrimSuffix(filepath.Base(file.Filename), ext) + "-" + uuid.NewString() + ext
	ref, err := store.Put(stored, src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	var orgID uint
	if user.OrganizationID != nil {
		orgID = *user.OrganizationID
	}
	ds, err := controller.Create(user.ID, orgID, file.Filename, file.Size, ref)
	if err != nil {
		failPipeline(c, err)
		return
	}
	c.JSON(http.StatusOK, datasetJSON(ds))
}

func listDatasetsHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	limit, offset := pageParams(c)
	items, err := controller.List(user, limit, offset)
	if err != nil {
		failPipeline(c, err)
		return
	}
	out := make([]gin.H, 0, len(items))
	for i := range items {
		out = append(out, datasetJSON(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"datasets": out})
}

func getDatasetHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	ds, err := controller.Get(c.Param("id"), user)
	if err != nil {
		failPipeline(c, err)
		return
	}
	c.JSON(http.StatusOK, datasetJSON(ds))
}

func deleteDatasetHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	if err := controller.Delete(c.Param("id"), user); err != nil {
		failPipeline(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "dataset deleted"})
}

func processDatasetHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	ds, err := controller.RequestProcessing(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		failPipeline(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"datasetId": ds.DatasetID,
		"status":    ds.Status,
		"message":   "dataset cleaning has started",
	})
}

func listRecordsHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	limit, offset := pageParams(c)
	recs, err := controller.ListRecords(c.Param("id"), user, limit, offset)
	if err != nil {
		failPipeline(c, err)
		return
	}
	out := make([]gin.H, 0, len(recs))
	for i := range recs {
		out = append(out, recordJSON(&recs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

func submitReviewHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record index"})
		return
	}
	var req struct {
		Approved *bool  `json:"approved" binding:"required"`
		Comments string `json:"comments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := coordinator.SubmitDecision(c.Param("id"), user, index, *req.Approved, req.Comments); err != nil {
		failPipeline(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "review submitted"})
}

func progressHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	p, err := coordinator.Progress(c.Param("id"), user)
	if err != nil {
		failPipeline(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"datasetId":       c.Param("id"),
		"totalRecords":    p.Total,
		"reviewedRecords": p.Reviewed,
		"progress":        p.Percent,
	})
}

func completeHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	if err := controller.RequestCompletion(c.Param("id"), user); err != nil {
		failPipeline(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "review process completed"})
}

// downloadDatasetHandler streams the original uploaded bytes back.
func downloadDatasetHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	ds, err := controller.Get(c.Param("id"), user)
	if err != nil {
		failPipeline(c, err)
		return
	}
	body, err := store.Get(ds.StoreRef)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stored file unavailable"})
		return
	}
	defer body.Close()
	c.DataFromReader(http.StatusOK, ds.Size, "text/csv", body, map[string]string{
		"Content-Disposition": `attachment; filename="` + ds.Filename + `"`,
	})
}

func registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := RegisterUser(req.Username, req.Password); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	tokenString, err := signAccessToken(&user, 24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	// create refresh token
	refreshToken, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": tokenString, "refresh_token": refreshToken})
}

// signAccessToken issues a JWT carrying username and role name.
func signAccessToken(user *models.User, ttl time.Duration) (string, error) {
	roleName := ""
	if user.RoleID != nil {
		var r models.Role
		if err := db.First(&r, *user.RoleID).Error; err == nil {
			roleName = r.Name
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"role":     roleName,
		"exp":      time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(jwtSecret)
}

// createAndStoreRefreshToken generates a random refresh token, stores its hash with expiry and returns the raw token string
func createAndStoreRefreshToken(userID uint) (string, error) {
	// generate random 32-byte token (hex)
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	// hash for storage
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	rt := models.RefreshToken{UserID: userID, TokenHash: th, ExpiresAt: time.Now().Add(30 * 24 * time.Hour)}
	if err := db.Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

// helper to find refresh token record by raw token string
func findRefreshTokenByRaw(token string) (*models.RefreshToken, error) {
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	var rt models.RefreshToken
	if err := db.Where("token_hash = ?", th).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	// load user
	var user models.User
	if err := db.First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	tokenString, err := signAccessToken(&user, 15*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	// rotate refresh token: revoke existing and create new one
	db.Model(&models.RefreshToken{}).Where("id = ?", rt.ID).Update("revoked", true)
	newRT, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

// revokeRefreshHandler revokes a given refresh token (useful on logout)
func revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	rt.Revoked = true
	if err := db.Save(rt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}
