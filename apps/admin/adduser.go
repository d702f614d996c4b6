package main

import (
	"context"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/user"
)

// addUser updates or creates a user.User. New users must change their password on first login.
func (cli *commandLine) addUser(name, email, roleName, pwd string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	role, err := user.ParseRole(roleName)
	if err != nil {
		return err
	}

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	switch {
	case err == user.ErrNotFound:
		_, err = cli.usrSvc.Create(ctx, user.NewUser{Name: name, Email: email, Role: role, Password: pwd})
		return err
	case err != nil:
		return err
	}

	uu := user.UpdateUser{Name: name, Email: usr.Email, Role: role, Area: usr.Area.String, Password: pwd}
	active := true
	uu.IsActive = &active
	_, err = cli.usrSvc.Update(ctx, usr.ID, uu)
	return err
}
