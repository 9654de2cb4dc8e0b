/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/palaver-chat/apiserver/cmd"

func main() {
	cmd.Execute()
}
