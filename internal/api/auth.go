// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/mail"
	"strings"

	"github.com/jeranaias/kbchat/internal/credstore"
	"github.com/jeranaias/kbchat/internal/model"
)

// LoginResult is the payload of a successful login.
type LoginResult struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        model.User `json:"user"`
}

// RegisterRequest is the registration form.
type RegisterRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	ConfirmPassword  string `json:"confirm_password"`
	VerificationCode string `json:"verification_code"`
	DepartmentID     int    `json:"department_id"`
	Name             string `json:"name"`
}

// Validate checks the form before it is sent.
func (r RegisterRequest) Validate() error {
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return validationError("invalid email address")
	}
	if r.Name == "" {
		return validationError("name is required")
	}
	if len(r.Password) < 6 {
		return validationError("password must be at least 6 characters")
	}
	if r.Password != r.ConfirmPassword {
		return validationError("passwords do not match")
	}
	if strings.TrimSpace(r.VerificationCode) == "" {
		return validationError("verification code is required")
	}
	return nil
}

// Login authenticates and installs the returned credentials in the session.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, validationError("email and password are required")
	}
	var res LoginResult
	err := c.postJSON(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.AccessToken == "" {
		return nil, &ClientError{Type: ErrTypeDecode, Message: "login response carried no token"}
	}
	if err := c.session.Set(credstore.Credentials{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		User:        res.User,
	}); err != nil {
		return &res, err
	}
	return &res, nil
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return c.postJSON(ctx, "/auth/register", req, nil)
}

// Logout ends the session on the server. Local credentials are cleared
// even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.session.Clear()
	return c.postJSON(ctx, "/auth/logout", nil, nil)
}

// Me fetches the current user and refreshes the cached profile.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var res LoginResult
	if err := c.getJSON(ctx, "/auth/me", nil, &res); err != nil {
		return nil, err
	}
	user := res.User
	if err := c.session.SetUser(user); err != nil {
		return &user, err
	}
	return &user, nil
}

// SendVerification mails a registration code to email.
func (c *Client) SendVerification(ctx context.Context, email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return validationError("invalid email address")
	}
	return c.postJSON(ctx, "/auth/send-verification", map[string]string{"email": email}, nil)
}

// Departments lists the departments offered at registration.
func (c *Client) Departments(ctx context.Context) ([]model.Department, error) {
	var out []model.Department
	if err := c.getJSON(ctx, "/common/department/list", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
