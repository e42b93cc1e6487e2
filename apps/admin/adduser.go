package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/gurudigital/pelangi/core"
	"github.com/gurudigital/pelangi/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if errors.Cause(err) == user.ErrNotFound {
		usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	}
	exists := err == nil
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return errors.Wrap(err, "finding user")
	}
	if !exists {
		usr = user.User{CreatedAt: now}
	}

	usr.Username = uname
	usr.Email = email
	if name != "" {
		usr.Name = name
	}
	if roles != nil {
		usr.Roles = roles
	}
	isActive := true
	usr.IsActive = &isActive
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
		return errors.Wrap(err, "updating user")
	}
	_, err = cli.usrRepo.CreateUser(ctx, usr)
	return errors.Wrap(err, "creating user")
}
