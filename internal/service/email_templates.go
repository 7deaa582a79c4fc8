package service

import "fmt"

func verificationEmailTemplate(name, verificationLink, appName string) (string, string) {
	subject := fmt.Sprintf("%s - Verify your email", appName)
	body := fmt.Sprintf(`Hi %s,

Thanks for signing up! Please verify your email address by clicking this link:
%s

This link expires in 1 hour and can only be used once.

If you didn't create an account, you can safely ignore this email.

Best,
The %s Team`, name, verificationLink, appName)

	return subject, body
}

func passwordResetEmailTemplate(name, resetLink, appName string) (string, string) {
	subject := fmt.Sprintf("%s - Reset your password", appName)
	body := fmt.Sprintf(`Hi %s,

You requested to reset your password. Click this link to choose a new one:
%s

This link expires in 1 hour and can only be used once.

If you didn't request this, you can safely ignore this email. Your password won't be changed.

Best,
The %s Team`, name, resetLink, appName)

	return subject, body
}

func passwordResetConfirmationTemplate(name, appName, supportEmail string) (string, string) {
	subject := fmt.Sprintf("%s - Your password was reset", appName)
	body := fmt.Sprintf(`Hi %s,

Your password has been reset successfully. You can now log in with your new password.

If you didn't do this, your account may be compromised. Please contact us immediately at %s.

Best,
The %s Team`, name, supportEmail, appName)

	return subject, body
}

func welcomeEmailTemplate(name, dashboardURL, appName string) (string, string) {
	subject := fmt.Sprintf("Welcome to %s!", appName)
	body := fmt.Sprintf(`Hi %s,

Your email is verified and your account is active!

Get started: %s

If you have questions, reach out to our support team.

Best,
The %s Team`, name, dashboardURL, appName)

	return subject, body
}
