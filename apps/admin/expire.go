package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) expireInvitations() error {
	n, err := cli.invRepo.ExpireOldInvitations(context.Background(), time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("%d invitation(s) expired\n", n)
	return nil
}

func (cli *commandLine) expireSubscriptions() error {
	n, err := cli.subRepo.ExpireGraceSubscriptions(context.Background(), time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("%d subscription(s) expired\n", n)
	return nil
}
