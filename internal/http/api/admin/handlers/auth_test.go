package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/registryhub/registryd/internal/config"
	"github.com/registryhub/registryd/internal/models"
	"github.com/registryhub/registryd/internal/security"
)

func TestLogin(t *testing.T) {
	conn := testDB(t)
	hashed, errHash := security.HashPassword("hunter2")
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	if errCreate := conn.Create(&models.Admin{Username: "root", Password: hashed}).Error; errCreate != nil {
		t.Fatalf("seed admin: %v", errCreate)
	}

	jwtCfg := config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/login", NewAuthHandler(conn, jwtCfg).Login)

	recorder := doJSON(t, engine, http.MethodPost, "/login",
		`{"username": "root", "password": "hunter2"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", recorder.Code, recorder.Body)
	}
	var body struct {
		Token string `json:"token"`
	}
	if errDecode := json.Unmarshal(recorder.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode login: %v", errDecode)
	}
	claims, errParse := security.ParseAdminToken(jwtCfg.Secret, body.Token)
	if errParse != nil {
		t.Fatalf("parse issued token: %v", errParse)
	}
	if claims.AdminID == 0 {
		t.Fatal("issued token has no admin id")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	conn := testDB(t)
	hashed, _ := security.HashPassword("hunter2")
	if errCreate := conn.Create(&models.Admin{Username: "root", Password: hashed}).Error; errCreate != nil {
		t.Fatalf("seed admin: %v", errCreate)
	}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/login", NewAuthHandler(conn, config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}).Login)

	recorder := doJSON(t, engine, http.MethodPost, "/login",
		`{"username": "root", "password": "wrong"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", recorder.Code)
	}

	recorder = doJSON(t, engine, http.MethodPost, "/login",
		`{"username": "nobody", "password": "hunter2"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user status = %d", recorder.Code)
	}
}

func TestLoginRejectsDisabledAdmin(t *testing.T) {
	conn := testDB(t)
	hashed, _ := security.HashPassword("hunter2")
	if errCreate := conn.Create(&models.Admin{Username: "root", Password: hashed, Disabled: true}).Error; errCreate != nil {
		t.Fatalf("seed admin: %v", errCreate)
	}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/login", NewAuthHandler(conn, config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}).Login)

	recorder := doJSON(t, engine, http.MethodPost, "/login",
		`{"username": "root", "password": "hunter2"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("disabled admin status = %d", recorder.Code)
	}
}
