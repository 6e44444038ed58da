package main

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/user"
)

// addAdmin creates an admin user.User, or promotes an existing one.
func (cli *commandLine) addAdmin(name, uname, email, pwd string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	var created bool
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname)
	if err == user.ErrNotFound {
		usr, err = cli.usrRepo.GetUserByUsernameOrEmail(ctx, email)
	}
	switch err {
	case nil:
	case user.ErrNotFound:
		usr = user.User{
			ID:        uuid.New().String(),
			Name:      name,
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
		created = true
	default:
		return err
	}

	usr.Roles = user.AllRoles
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if created {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		isActive := true
		_, err = cli.usrRepo.UpdateUser(ctx, usr, &isActive)
	}
	return err
}
