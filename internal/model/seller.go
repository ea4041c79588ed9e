package model

import "time"

// Seller is an adherent of the committee roster.  Sellers are looked up by
// the e-mail carried in their verified identity.  Official sellers are the
// ones loaded from the committee roster; only they appear in reports.
//
// Fields:
//  ID         – sellers.id.
//  Name       – sellers.name.
//  CPF        – sellers.cpf, unique tax id used as the reporting key.
//  Email      – sellers.email, unique.
//  IsOfficial – sellers.is_official.
//  CreatedAt  – sellers.created_at.
type Seller struct {
    ID         uint64
    Name       string
    CPF        string
    Email      string
    IsOfficial bool
    CreatedAt  time.Time
}
